// Package auth resolves the user behind a preview request. The preview
// only needs the user ID, to namespace uploads; sign-in itself is handled
// by the managed backend.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned when the request carries no usable session.
var ErrNoSession = errors.New("no authenticated user")

// AccessTokenCookie is the cookie the backend's browser client writes.
const AccessTokenCookie = "sb-access-token"

// User is the authenticated user.
type User struct {
	ID    string
	Email string
}

// Resolver identifies the user of a request.
//
// Resolve returns ErrNoSession (possibly wrapped) when no user is signed
// in, and other errors for malformed credentials.
type Resolver interface {
	Resolve(r *http.Request) (User, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(r *http.Request) (User, error)

// Resolve calls f(r).
func (f ResolverFunc) Resolve(r *http.Request) (User, error) { return f(r) }

// StaticResolver always returns the same user. For development only.
type StaticResolver struct {
	User User
}

// Resolve returns the configured user, or ErrNoSession if it has no ID.
func (s StaticResolver) Resolve(*http.Request) (User, error) {
	if s.User.ID == "" {
		return User{}, ErrNoSession
	}
	return s.User, nil
}

// Claims is the subset of the backend's access token the preview reads.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HS256 access tokens signed with the backend's JWT
// secret.
type JWTResolver struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTResolver creates a resolver for the given secret.
func NewJWTResolver(secret string) (*JWTResolver, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &JWTResolver{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Resolve reads the bearer token from the Authorization header or the
// access token cookie.
func (j *JWTResolver) Resolve(r *http.Request) (User, error) {
	raw := bearerToken(r)
	if raw == "" {
		return User{}, ErrNoSession
	}

	var claims Claims
	_, err := j.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return User{}, fmt.Errorf("%w: session expired", ErrNoSession)
		}
		return User{}, fmt.Errorf("invalid access token: %w", err)
	}
	if claims.Subject == "" {
		return User{}, fmt.Errorf("%w: token has no subject", ErrNoSession)
	}
	return User{ID: claims.Subject, Email: claims.Email}, nil
}

// Sign issues a token for a user. Used by tests and the dev login.
func (j *JWTResolver) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
