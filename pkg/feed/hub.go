package feed

import (
	"context"
	"sync"

	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/match"
)

const (
	// subscriptionBufferSize bounds the number of undelivered events per
	// subscriber. A subscriber that falls further behind loses events,
	// which at-least-once delivery permits.
	subscriptionBufferSize = 16
)

// Hub is an in-memory change feed. It satisfies the repository's
// ChangeNotifier so committed changes fan out to every subscription
// bound to the affected match id.
type Hub struct {
	mu            sync.Mutex
	subscriptions map[string]map[*hubSubscription]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*hubSubscription]struct{}),
	}
}

func (h *Hub) Subscribe(ctx context.Context, matchID string) (Subscription, error) {
	sub := &hubSubscription{
		hub:     h,
		matchID: matchID,
		events:  make(chan Event, subscriptionBufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscriptions[matchID]
	if !ok {
		subs = make(map[*hubSubscription]struct{})
		h.subscriptions[matchID] = subs
	}
	subs[sub] = struct{}{}

	return sub, nil
}

// MatchUpdated pushes the committed record to all subscribers of its id.
func (h *Hub) MatchUpdated(m *match.Match) {
	h.publish(m.ID, Event{
		Type:  EventTypeUpdated,
		Match: m.Clone(),
	})
}

// MatchDeleted tells all subscribers of the id that the record is gone.
func (h *Hub) MatchDeleted(matchID string) {
	h.publish(matchID, Event{
		Type: EventTypeDeleted,
	})
}

func (h *Hub) publish(matchID string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscriptions[matchID] {
		select {
		case sub.events <- event:
		default:
			log.Warn("Dropping %s event for match %s: subscriber buffer full", event.Type, matchID)
		}
	}
}

func (h *Hub) remove(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscriptions[sub.matchID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscriptions, sub.matchID)
	}
}

type hubSubscription struct {
	hub     *Hub
	matchID string
	events  chan Event
	once    sync.Once
}

func (s *hubSubscription) Events() <-chan Event {
	return s.events
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.events)
	})
}
