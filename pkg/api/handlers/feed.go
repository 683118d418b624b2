package handlers

import (
	"net/http"

	"github.com/cbodonnell/gridlock/pkg/feed"
	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/repositories"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleFeed upgrades the request to a websocket and streams change
// events for one match until the client disconnects.
func HandleFeed(changeFeed feed.ChangeFeed, repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := mux.Vars(r)["matchID"]

		if _, err := repository.GetMatch(r.Context(), matchID); err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Match not found", http.StatusNotFound)
				return
			}
			log.Error("failed to get match: %v", err)
			http.Error(w, "Failed to get match", http.StatusInternalServerError)
			return
		}

		sub, err := changeFeed.Subscribe(r.Context(), matchID)
		if err != nil {
			log.Error("failed to subscribe to match %s: %v", matchID, err)
			http.Error(w, "Failed to subscribe", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			sub.Unsubscribe()
			log.Error("Failed to upgrade to WebSocket: %v", err)
			return
		}
		log.Debug("New feed connection for match %s from %s", matchID, conn.RemoteAddr().String())

		go discardReads(conn, sub)
		writeEvents(conn, sub)
	}
}

// discardReads drains the connection so close frames are processed, and
// ends the subscription when the client goes away.
func discardReads(conn *websocket.Conn, sub feed.Subscription) {
	defer sub.Unsubscribe()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvents(conn *websocket.Conn, sub feed.Subscription) {
	defer conn.Close()
	for event := range sub.Events() {
		wireEvent := &feed.WireEvent{}
		switch event.Type {
		case feed.EventTypeUpdated:
			wireEvent.Type = feed.WireEventUpdate
			wireEvent.Match = event.Match
		case feed.EventTypeDeleted:
			wireEvent.Type = feed.WireEventDelete
		default:
			continue
		}

		if err := conn.WriteJSON(wireEvent); err != nil {
			log.Trace("Feed connection closed for %s", conn.RemoteAddr().String())
			return
		}
	}
}
