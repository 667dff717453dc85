// Package auth resolves the calling user for API requests.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when no owner identity can be resolved.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves the owner id for a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// StaticTokenAuthenticator maps bearer tokens to user ids from configuration.
type StaticTokenAuthenticator struct {
	tokens map[string]string
}

// NewStaticTokenAuthenticator creates an authenticator over a token -> user id map.
func NewStaticTokenAuthenticator(tokens map[string]string) *StaticTokenAuthenticator {
	return &StaticTokenAuthenticator{tokens: tokens}
}

// Authenticate resolves the owner from the Authorization bearer token.
func (a *StaticTokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthorized
	}
	owner, ok := a.tokens[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return owner, nil
}

type contextKey struct{}

// Middleware rejects unauthenticated requests before any handler work and
// stores the resolved owner id in the request context.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), owner)))
		})
	}
}

// WithOwnerID returns a context carrying the owner id.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, contextKey{}, ownerID)
}

// OwnerID returns the owner id stored in ctx, if any.
func OwnerID(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(contextKey{}).(string)
	return owner, ok && owner != ""
}
