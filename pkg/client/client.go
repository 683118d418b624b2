// Package client implements the session controller's repository port
// over the match service's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cbodonnell/gridlock/pkg/api/handlers"
	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/cbodonnell/gridlock/pkg/repositories"
	"github.com/cbodonnell/gridlock/pkg/session"
)

var _ session.MatchRepository = &RESTRepository{}

type RESTRepository struct {
	serverURL string
	token     string
	client    *http.Client
}

type NewRESTRepositoryOptions struct {
	// ServerURL is the base URL of the match service,
	// e.g. http://localhost:8080
	ServerURL string
	// Token is the bearer token attached to every request.
	Token string
}

func NewRESTRepository(opts NewRESTRepositoryOptions) *RESTRepository {
	return &RESTRepository{
		serverURL: opts.ServerURL,
		token:     opts.Token,
		client:    http.DefaultClient,
	}
}

func (r *RESTRepository) CreateMatch(ctx context.Context, playerID string) (*match.Match, error) {
	m := &match.Match{}
	if err := r.do(ctx, http.MethodPost, "/matches", nil, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *RESTRepository) JoinMatch(ctx context.Context, matchID string, playerID string) (*match.Match, error) {
	m := &match.Match{}
	if err := r.do(ctx, http.MethodPost, "/matches/"+matchID+"/join", nil, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *RESTRepository) ApplyMove(ctx context.Context, matchID string, playerID string, position int, mark match.Mark) error {
	body := &handlers.MoveRequestBody{
		Position: position,
		Mark:     mark,
	}
	return r.do(ctx, http.MethodPost, "/matches/"+matchID+"/move", body, nil)
}

func (r *RESTRepository) ResetMatch(ctx context.Context, matchID string) error {
	return r.do(ctx, http.MethodPost, "/matches/"+matchID+"/reset", nil, nil)
}

func (r *RESTRepository) CancelMatch(ctx context.Context, matchID string) error {
	return r.do(ctx, http.MethodPost, "/matches/"+matchID+"/cancel", nil, nil)
}

// do issues one API request. Rejections carry the service's reason text
// so callers can report it verbatim; 404s map to the repository's
// not-found error.
func (r *RESTRepository) do(ctx context.Context, method string, path string, requestBody interface{}, responseBody interface{}) error {
	var body io.Reader
	if requestBody != nil {
		buf := bytes.NewBuffer(nil)
		if err := json.NewEncoder(buf).Encode(requestBody); err != nil {
			return fmt.Errorf("failed to encode request body: %v", err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, r.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &repositories.ErrNotFound{}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("request failed with status %s", resp.Status)
		}
		return fmt.Errorf("%s", strings.TrimSpace(string(message)))
	}

	if responseBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(responseBody); err != nil {
			return fmt.Errorf("failed to decode response: %v", err)
		}
	}

	return nil
}
