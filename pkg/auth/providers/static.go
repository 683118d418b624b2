package providers

import "context"

var _ AuthProvider = &StaticAuthProvider{}

// StaticAuthProvider treats the bearer token itself as the user id.
// For local development and tests only.
type StaticAuthProvider struct {
}

func NewStaticAuthProvider() *StaticAuthProvider {
	return &StaticAuthProvider{}
}

func (p *StaticAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	return &TokenClaims{
		UID: idToken,
	}, nil
}
