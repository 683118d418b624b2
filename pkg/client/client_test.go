package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/cbodonnell/gridlock/pkg/api"
	authproviders "github.com/cbodonnell/gridlock/pkg/auth/providers"
	"github.com/cbodonnell/gridlock/pkg/feed"
	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/cbodonnell/gridlock/pkg/repositories"
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

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		AuthProvider: authproviders.NewStaticAuthProvider(),
		Repository:   repo,
		ChangeFeed:   hub,
	})
	server := httptest.NewServer(apiServer.Handler())
	t.Cleanup(server.Close)
	return server
}

// newTestRepository returns a REST repository authenticated as the
// given player under the static auth scheme.
func newTestRepository(server *httptest.Server, playerID string) *RESTRepository {
	return NewRESTRepository(NewRESTRepositoryOptions{
		ServerURL: server.URL,
		Token:     playerID,
	})
}

func TestRESTRepository_MatchFlow(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	playerX := newTestRepository(server, "player-x")
	playerO := newTestRepository(server, "player-o")

	created, err := playerX.CreateMatch(ctx, "player-x")
	require.NoError(t, err)
	assert.Equal(t, "player-x", created.PlayerX)
	assert.Equal(t, match.StatusWaiting, created.Status)
	assert.Equal(t, match.EmptyBoard(), created.Board)

	joined, err := playerO.JoinMatch(ctx, created.ID, "player-o")
	require.NoError(t, err)
	assert.Equal(t, "player-o", joined.PlayerO)
	assert.Equal(t, match.StatusInProgress, joined.Status)

	require.NoError(t, playerX.ApplyMove(ctx, created.ID, "player-x", 4, match.MarkX))
	require.NoError(t, playerO.ApplyMove(ctx, created.ID, "player-o", 0, match.MarkO))

	require.NoError(t, playerX.ResetMatch(ctx, created.ID))
	require.NoError(t, playerO.CancelMatch(ctx, created.ID))
}

func TestRESTRepository_NotFound(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	repo := newTestRepository(server, "player-x")

	_, err := repo.JoinMatch(ctx, "no-such-match", "player-x")
	assert.True(t, repositories.IsNotFound(err))

	err = repo.ResetMatch(ctx, "no-such-match")
	assert.True(t, repositories.IsNotFound(err))

	err = repo.CancelMatch(ctx, "no-such-match")
	assert.True(t, repositories.IsNotFound(err))
}

// Rejection reasons travel from the record store through the API to the
// caller unchanged, so the session can report them verbatim.
func TestRESTRepository_VerbatimRejections(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	playerX := newTestRepository(server, "player-x")
	playerO := newTestRepository(server, "player-o")
	playerZ := newTestRepository(server, "player-z")

	created, err := playerX.CreateMatch(ctx, "player-x")
	require.NoError(t, err)

	_, err = playerX.JoinMatch(ctx, created.ID, "player-x")
	require.Error(t, err)
	assert.Equal(t, "player is already in the match", err.Error())

	_, err = playerO.JoinMatch(ctx, created.ID, "player-o")
	require.NoError(t, err)

	_, err = playerZ.JoinMatch(ctx, created.ID, "player-z")
	require.Error(t, err)
	assert.Equal(t, "match is already full", err.Error())

	err = playerO.ApplyMove(ctx, created.ID, "player-o", 0, match.MarkO)
	require.Error(t, err)
	assert.Equal(t, "invalid move: not your turn", err.Error())

	err = playerX.ApplyMove(ctx, created.ID, "player-x", 9, match.MarkX)
	require.Error(t, err)
	assert.Equal(t, "invalid move: position out of range", err.Error())
}
