// Package auth holds the identity side of a match session: anonymous
// sign-in for clients and token verification providers for the service.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/cbodonnell/gridlock/pkg/log"
)

// Identity resolves a stable user id for the local participant and
// exposes the bearer token to present on repository and feed calls.
type Identity interface {
	Resolve(ctx context.Context) (string, error)
	Token() string
}

var _ Identity = &AnonymousIdentity{}

// AnonymousIdentity signs in anonymously against the Firebase Auth REST
// API. The first Resolve performs the sign-up; the identity is cached
// for the lifetime of the process.
// https://firebase.google.com/docs/reference/rest/auth#section-sign-in-anonymously
type AnonymousIdentity struct {
	apiKey string
	client *http.Client

	mu      sync.Mutex
	userID  string
	idToken string
}

func NewAnonymousIdentity(apiKey string) *AnonymousIdentity {
	return &AnonymousIdentity{
		apiKey: apiKey,
		client: http.DefaultClient,
	}
}

// SignUpRequestBody is the request body for the anonymous sign-in endpoint
type SignUpRequestBody struct {
	ReturnSecureToken bool `json:"returnSecureToken"`
}

// SignUpResponseBody is the response body for the anonymous sign-in endpoint
type SignUpResponseBody struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

// ErrorResponseBody is the response body for an error
// https://firebase.google.com/docs/reference/rest/auth#section-error-format
type ErrorResponseBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AnonymousIdentity) Resolve(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userID != "" {
		return a.userID, nil
	}

	requestPayload := &SignUpRequestBody{
		ReturnSecureToken: true,
	}

	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(requestPayload); err != nil {
		return "", fmt.Errorf("error encoding request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://identitytoolkit.googleapis.com/v1/accounts:signUp?key="+a.apiKey, body)
	if err != nil {
		return "", fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorResponse := &ErrorResponseBody{}
		if err := json.NewDecoder(resp.Body).Decode(errorResponse); err != nil {
			return "", fmt.Errorf("failed to decode error response: %v", err)
		}
		return "", fmt.Errorf("failed to sign in anonymously: %s", errorResponse.Error.Message)
	}

	responsePayload := &SignUpResponseBody{}
	if err := json.NewDecoder(resp.Body).Decode(responsePayload); err != nil {
		return "", fmt.Errorf("error decoding response: %v", err)
	}

	a.userID = responsePayload.LocalID
	a.idToken = responsePayload.IDToken
	log.Debug("Signed in anonymously as %s", a.userID)

	return a.userID, nil
}

func (a *AnonymousIdentity) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idToken
}

var _ Identity = &StaticIdentity{}

// StaticIdentity resolves a fixed user id whose token is the id itself.
// Pairs with the service's StaticAuthProvider for local development.
type StaticIdentity struct {
	userID string
}

func NewStaticIdentity(userID string) *StaticIdentity {
	return &StaticIdentity{
		userID: userID,
	}
}

func (s *StaticIdentity) Resolve(ctx context.Context) (string, error) {
	if s.userID == "" {
		return "", fmt.Errorf("no user id configured")
	}
	return s.userID, nil
}

func (s *StaticIdentity) Token() string {
	return s.userID
}
