// Package feed delivers committed match changes to subscribed clients.
// Delivery is at-least-once; per-channel ordering is best effort.
package feed

import (
	"context"

	"github.com/cbodonnell/gridlock/pkg/match"
)

type EventType int

const (
	EventTypeUpdated EventType = iota
	EventTypeDeleted
)

func (t EventType) String() string {
	switch t {
	case EventTypeUpdated:
		return "updated"
	case EventTypeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a single change notification for a match record.
// Match is set for EventTypeUpdated and nil for EventTypeDeleted.
type Event struct {
	Type  EventType
	Match *match.Match
}

// Subscription is a live feed for a single match id. Events() is closed
// when the subscription ends. Unsubscribe is safe to call more than once.
type Subscription interface {
	Events() <-chan Event
	Unsubscribe()
}

// ChangeFeed is a push channel keyed by match id.
type ChangeFeed interface {
	Subscribe(ctx context.Context, matchID string) (Subscription, error)
}

// Wire form of an event as carried over the websocket feed endpoint.
const (
	WireEventUpdate = "UPDATE"
	WireEventDelete = "DELETE"
)

type WireEvent struct {
	Type  string       `json:"type"`
	Match *match.Match `json:"match,omitempty"`
}
