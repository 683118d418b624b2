package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cbodonnell/gridlock/pkg/api/handlers"
	authproviders "github.com/cbodonnell/gridlock/pkg/auth/providers"
	"github.com/cbodonnell/gridlock/pkg/feed"
	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/cbodonnell/gridlock/pkg/repositories"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := feed.NewHub()
	repo, err := repositories.NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "test.db"), "../../migrations/sqlite", hub)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close(context.Background())
	})

	apiServer := NewAPIServer(NewAPIServerOptions{
		AuthProvider: authproviders.NewStaticAuthProvider(),
		Repository:   repo,
		ChangeFeed:   hub,
	})
	server := httptest.NewServer(apiServer.Handler())
	t.Cleanup(server.Close)
	return server
}

// doRequest issues a request with the static auth scheme, where the
// bearer token doubles as the user id.
func doRequest(t *testing.T, server *httptest.Server, method string, path string, userID string, body interface{}) *http.Response {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, server.URL+path, reqBody)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+userID)
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		resp.Body.Close()
	})
	return resp
}

func decodeMatch(t *testing.T, resp *http.Response) *match.Match {
	t.Helper()
	m := &match.Match{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(m))
	return m
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func TestAPIServer_RequiresAuth(t *testing.T) {
	server := newTestServer(t)

	resp := doRequest(t, server, http.MethodPost, "/matches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIServer_MatchLifecycle(t *testing.T) {
	server := newTestServer(t)

	resp := doRequest(t, server, http.MethodPost, "/matches", "player-x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decodeMatch(t, resp)
	assert.Equal(t, "player-x", created.PlayerX)
	assert.Equal(t, match.StatusWaiting, created.Status)

	resp = doRequest(t, server, http.MethodGet, "/matches/"+created.ID, "player-x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, server, http.MethodGet, "/matches/no-such-match", "player-x", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, server, http.MethodPost, "/matches/"+created.ID+"/join", "player-o", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	joined := decodeMatch(t, resp)
	assert.Equal(t, match.StatusInProgress, joined.Status)

	// Rejections surface the reason text verbatim.
	resp = doRequest(t, server, http.MethodPost, "/matches/"+created.ID+"/join", "player-z", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "match is already full", readBody(t, resp))

	resp = doRequest(t, server, http.MethodPost, "/matches/"+created.ID+"/move", "player-x", &handlers.MoveRequestBody{Position: 4, Mark: match.MarkX})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, server, http.MethodPost, "/matches/"+created.ID+"/move", "player-x", &handlers.MoveRequestBody{Position: 0, Mark: match.MarkX})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid move: not your turn", readBody(t, resp))

	resp = doRequest(t, server, http.MethodGet, "/matches/"+created.ID, "player-x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeMatch(t, resp)
	assert.Equal(t, "----X----", got.Board.String())
	assert.Equal(t, match.MarkO, got.CurrentTurn)

	resp = doRequest(t, server, http.MethodPost, "/matches/"+created.ID+"/reset", "player-x", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, server, http.MethodPost, "/matches/"+created.ID+"/cancel", "player-x", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, server, http.MethodDelete, "/matches/"+created.ID, "player-x", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, server, http.MethodGet, "/matches/"+created.ID, "player-x", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIServer_Feed(t *testing.T) {
	server := newTestServer(t)

	resp := doRequest(t, server, http.MethodPost, "/matches", "player-x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decodeMatch(t, resp)

	wsURL := strings.Replace(server.URL, "http", "ws", 1) + "/matches/" + created.ID + "/feed"
	header := http.Header{}
	header.Set("Authorization", "Bearer player-x")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	resp = doRequest(t, server, http.MethodPost, "/matches/"+created.ID+"/join", "player-o", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	event := &feed.WireEvent{}
	require.NoError(t, conn.ReadJSON(event))
	assert.Equal(t, feed.WireEventUpdate, event.Type)
	require.NotNil(t, event.Match)
	assert.Equal(t, created.ID, event.Match.ID)
	assert.Equal(t, match.StatusInProgress, event.Match.Status)

	resp = doRequest(t, server, http.MethodDelete, "/matches/"+created.ID, "player-x", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	event = &feed.WireEvent{}
	require.NoError(t, conn.ReadJSON(event))
	assert.Equal(t, feed.WireEventDelete, event.Type)
	assert.Nil(t, event.Match)
}

func TestAPIServer_FeedUnknownMatch(t *testing.T) {
	server := newTestServer(t)

	wsURL := strings.Replace(server.URL, "http", "ws", 1) + "/matches/no-such-match/feed"
	header := http.Header{}
	header.Set("Authorization", "Bearer player-x")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
