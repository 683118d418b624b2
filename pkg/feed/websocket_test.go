package feed_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cbodonnell/gridlock/pkg/api"
	authproviders "github.com/cbodonnell/gridlock/pkg/auth/providers"
	"github.com/cbodonnell/gridlock/pkg/feed"
	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/cbodonnell/gridlock/pkg/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedTestServer(t *testing.T) (*httptest.Server, repositories.Repository) {
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
	return server, repo
}

func wsURL(server *httptest.Server) string {
	return strings.Replace(server.URL, "http", "ws", 1)
}

func nextEvent(t *testing.T, sub feed.Subscription) feed.Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		require.True(t, ok, "subscription channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return feed.Event{}
	}
}

func TestWSFeed_StreamsChanges(t *testing.T) {
	server, repo := newFeedTestServer(t)
	ctx := context.Background()

	created, err := repo.CreateMatch(ctx, "player-x")
	require.NoError(t, err)

	wsFeed := feed.NewWSFeed(feed.NewWSFeedOptions{
		ServerURL: wsURL(server),
		Token:     "player-x",
	})
	sub, err := wsFeed.Subscribe(ctx, created.ID)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = repo.JoinMatch(ctx, created.ID, "player-o")
	require.NoError(t, err)

	event := nextEvent(t, sub)
	assert.Equal(t, feed.EventTypeUpdated, event.Type)
	require.NotNil(t, event.Match)
	assert.Equal(t, created.ID, event.Match.ID)
	assert.Equal(t, match.StatusInProgress, event.Match.Status)

	require.NoError(t, repo.ApplyMove(ctx, created.ID, "player-x", 0, match.MarkX))

	event = nextEvent(t, sub)
	assert.Equal(t, feed.EventTypeUpdated, event.Type)
	assert.Equal(t, match.MarkX, event.Match.Board[0])

	require.NoError(t, repo.DeleteMatch(ctx, created.ID))

	event = nextEvent(t, sub)
	assert.Equal(t, feed.EventTypeDeleted, event.Type)
	assert.Nil(t, event.Match)
}

func TestWSFeed_UnsubscribeClosesChannel(t *testing.T) {
	server, repo := newFeedTestServer(t)
	ctx := context.Background()

	created, err := repo.CreateMatch(ctx, "player-x")
	require.NoError(t, err)

	wsFeed := feed.NewWSFeed(feed.NewWSFeedOptions{
		ServerURL: wsURL(server),
		Token:     "player-x",
	})
	sub, err := wsFeed.Subscribe(ctx, created.ID)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestWSFeed_UnknownMatch(t *testing.T) {
	server, _ := newFeedTestServer(t)

	wsFeed := feed.NewWSFeed(feed.NewWSFeedOptions{
		ServerURL: wsURL(server),
		Token:     "player-x",
	})
	_, err := wsFeed.Subscribe(context.Background(), "no-such-match")
	require.Error(t, err)
}
