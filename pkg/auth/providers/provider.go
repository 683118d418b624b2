package providers

import "context"

// AuthProvider verifies a bearer token presented to the match service.
type AuthProvider interface {
	VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error)
}

type TokenClaims struct {
	UID string `json:"uid"`
}
