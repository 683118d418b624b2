package feed

import (
	"context"
	"testing"
	"time"

	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMatch(id string) *match.Match {
	now := time.Now().UTC()
	return &match.Match{
		ID:          id,
		PlayerX:     "player-x",
		Board:       match.EmptyBoard(),
		CurrentTurn: match.MarkX,
		Status:      match.StatusWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func receiveEvent(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		require.True(t, ok, "subscription channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_PublishToSubscribers(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	first, err := hub.Subscribe(ctx, "match-1")
	require.NoError(t, err)
	second, err := hub.Subscribe(ctx, "match-1")
	require.NoError(t, err)
	other, err := hub.Subscribe(ctx, "match-2")
	require.NoError(t, err)

	hub.MatchUpdated(testMatch("match-1"))

	for _, sub := range []Subscription{first, second} {
		event := receiveEvent(t, sub)
		assert.Equal(t, EventTypeUpdated, event.Type)
		require.NotNil(t, event.Match)
		assert.Equal(t, "match-1", event.Match.ID)
	}

	// The other match's subscriber sees nothing.
	select {
	case event := <-other.Events():
		t.Fatalf("unexpected event for match-2: %v", event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_PublishClonesMatch(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe(context.Background(), "match-1")
	require.NoError(t, err)

	m := testMatch("match-1")
	hub.MatchUpdated(m)
	m.Board[0] = match.MarkX

	event := receiveEvent(t, sub)
	assert.Equal(t, match.MarkEmpty, event.Match.Board[0])
}

func TestHub_MatchDeleted(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe(context.Background(), "match-1")
	require.NoError(t, err)

	hub.MatchDeleted("match-1")

	event := receiveEvent(t, sub)
	assert.Equal(t, EventTypeDeleted, event.Type)
	assert.Nil(t, event.Match)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe(context.Background(), "match-1")
	require.NoError(t, err)

	sub.Unsubscribe()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Unsubscribing again is a no-op, and publishing to the departed
	// subscriber does not panic.
	sub.Unsubscribe()
	hub.MatchUpdated(testMatch("match-1"))
}

func TestHub_FullBufferDropsEvents(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe(context.Background(), "match-1")
	require.NoError(t, err)

	// Overrun the buffer without draining. Publish must not block.
	for i := 0; i < subscriptionBufferSize*2; i++ {
		hub.MatchUpdated(testMatch("match-1"))
	}

	delivered := 0
	for {
		select {
		case <-sub.Events():
			delivered++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriptionBufferSize, delivered)
}
