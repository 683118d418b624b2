package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/gorilla/websocket"
)

// WSFeed subscribes to a match service's websocket feed endpoint.
// Each subscription holds its own connection, bound to one match id.
type WSFeed struct {
	serverURL string
	token     string
	dialer    *websocket.Dialer
}

type NewWSFeedOptions struct {
	// ServerURL is the base websocket URL of the match service,
	// e.g. ws://localhost:8080
	ServerURL string
	// Token is the bearer token presented when dialing.
	Token string
}

func NewWSFeed(opts NewWSFeedOptions) *WSFeed {
	return &WSFeed{
		serverURL: opts.ServerURL,
		token:     opts.Token,
		dialer:    websocket.DefaultDialer,
	}
}

func (f *WSFeed) Subscribe(ctx context.Context, matchID string) (Subscription, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}

	url := fmt.Sprintf("%s/matches/%s/feed", f.serverURL, matchID)
	conn, _, err := f.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to feed: %v", err)
	}

	sub := &wsSubscription{
		conn:    conn,
		matchID: matchID,
		events:  make(chan Event, subscriptionBufferSize),
	}
	go sub.readLoop()

	return sub, nil
}

type wsSubscription struct {
	conn    *websocket.Conn
	matchID string
	events  chan Event
	once    sync.Once
}

func (s *wsSubscription) Events() <-chan Event {
	return s.events
}

func (s *wsSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.conn.Close()
	})
}

// readLoop is the only writer to and the only closer of the events
// channel. It exits when the connection closes from either side.
func (s *wsSubscription) readLoop() {
	defer close(s.events)
	for {
		wireEvent := &WireEvent{}
		if err := s.conn.ReadJSON(wireEvent); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error("Error reading feed event for match %s: %v", s.matchID, err)
			}
			log.Trace("Feed connection closed for match %s", s.matchID)
			return
		}

		switch wireEvent.Type {
		case WireEventUpdate:
			if wireEvent.Match == nil {
				log.Error("Update feed event missing match record")
				continue
			}
			s.events <- Event{Type: EventTypeUpdated, Match: wireEvent.Match}
		case WireEventDelete:
			s.events <- Event{Type: EventTypeDeleted}
		default:
			log.Warn("Received unexpected feed event type: %s", wireEvent.Type)
		}
	}
}
