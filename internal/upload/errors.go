package upload

import (
	"errors"
	"fmt"
)

// Sentinel causes, matched with errors.Is.
var (
	ErrNotImage         = errors.New("file is not an image")
	ErrTooLarge         = errors.New("file is too large")
	ErrEmpty            = errors.New("file is empty")
	ErrNotAuthenticated = errors.New("not signed in")
	ErrRateLimited      = errors.New("too many uploads")
)

// ValidationError is raised before any network call; nothing was stored.
type ValidationError struct {
	Err     error
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return e.Err }

// TooLarge is the validation error for a file over limit bytes.
func TooLarge(limit int64) *ValidationError {
	return &ValidationError{
		Err:     ErrTooLarge,
		Message: fmt.Sprintf("Afbeelding is te groot (max %d MB).", limit>>20),
	}
}

// AuthError means no user could be resolved for the upload.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("upload requires a signed-in user: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// Is matches ErrNotAuthenticated whatever the resolver's cause was.
func (e *AuthError) Is(target error) bool { return target == ErrNotAuthenticated }

// TransportError wraps a storage failure.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.Path, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user for an upload failure.
func UserMessage(err error) string {
	var verr *ValidationError
	var aerr *AuthError
	var terr *TransportError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.As(err, &aerr):
		return "Je moet ingelogd zijn om afbeeldingen te uploaden."
	case errors.Is(err, ErrRateLimited):
		return "Te veel uploads tegelijk. Probeer het over een moment opnieuw."
	case errors.As(err, &terr):
		return "Upload mislukt. Probeer het opnieuw."
	case err != nil:
		return "Er ging iets mis bij het uploaden."
	}
	return ""
}
