package v1

import (
	"context"

	"github.com/google/uuid"
)

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// TokenVerifier resolves a bearer token to the authenticated user id.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}
