package editpreview

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
)

// SessionCookie names the browser's preview session.
const SessionCookie = "editpreview-session"

// sessionHeader can carry the session ID where cookies are unavailable.
const sessionHeader = "X-Editpreview-Session"

// sessionID returns the browser's session ID and whether it was newly
// generated.
func sessionID(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, false
	}
	if id := r.Header.Get(sessionHeader); id != "" {
		return id, false
	}
	return generateSessionID(), true
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateSessionID creates a cryptographically secure random session ID.
func generateSessionID() string {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		// crypto/rand.Read only fails on systems without entropy source
		panic(fmt.Sprintf("failed to generate session ID: %v", err))
	}
	return base64.URLEncoding.EncodeToString(b)
}
