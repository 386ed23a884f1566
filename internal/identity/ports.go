// Package identity provides the identity store: it maps opaque bearer
// tokens to caller names, and exposes the admin CRUD surface over
// api_keys.
//
// It follows the same hexagonal shape as the auth module it was adapted
// from: ports here, adapters (HTTP middleware, caches, SQL repository)
// in the sibling files and internal/ subpackages.
package identity

import (
	"context"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/domain"
)

// KeyStore defines the port for API key persistence.
type KeyStore interface {
	// FindByToken retrieves a caller's key record by plaintext token.
	// Returns nil, nil if the token is unknown.
	FindByToken(ctx context.Context, token string) (*domain.APIKey, error)

	// Create persists a new API key.
	Create(ctx context.Context, key *domain.APIKey) error

	// Rotate replaces the token for an existing caller.
	Rotate(ctx context.Context, name, newToken string) error

	// Delete removes a caller's key entirely.
	Delete(ctx context.Context, name string) error

	// List returns every key record.
	List(ctx context.Context) ([]domain.APIKey, error)

	// AllTokens returns every currently-valid token, used to seed the
	// negative cache.
	AllTokens(ctx context.Context) ([]string, error)
}

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

// CallerContextKey is the context key the auth middleware injects the
// authenticated caller name under.
const CallerContextKey contextKey = "caller"

// Caller retrieves the authenticated caller name from ctx, or "" if
// unauthenticated.
func Caller(ctx context.Context) string {
	if name, ok := ctx.Value(CallerContextKey).(string); ok {
		return name
	}
	return ""
}
