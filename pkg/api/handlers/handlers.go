package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cbodonnell/gridlock/pkg/api/middleware"
	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/cbodonnell/gridlock/pkg/repositories"
	"github.com/gorilla/mux"
)

func HandleCreateMatch(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		m, err := repository.CreateMatch(r.Context(), userID)
		if err != nil {
			log.Error("failed to create match: %v", err)
			http.Error(w, "Failed to create match", http.StatusInternalServerError)
			return
		}

		writeMatch(w, m)
	}
}

func HandleGetMatch(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := mux.Vars(r)["matchID"]

		m, err := repository.GetMatch(r.Context(), matchID)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Match not found", http.StatusNotFound)
				return
			}
			log.Error("failed to get match: %v", err)
			http.Error(w, "Failed to get match", http.StatusInternalServerError)
			return
		}

		writeMatch(w, m)
	}
}

func HandleJoinMatch(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		matchID := mux.Vars(r)["matchID"]

		m, err := repository.JoinMatch(r.Context(), matchID, userID)
		if err != nil {
			writeRepositoryError(w, err, "failed to join match")
			return
		}

		writeMatch(w, m)
	}
}

// MoveRequestBody is the request body for the move endpoint.
type MoveRequestBody struct {
	Position int        `json:"position"`
	Mark     match.Mark `json:"mark"`
}

func HandleApplyMove(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		matchID := mux.Vars(r)["matchID"]

		body := &MoveRequestBody{}
		if err := json.NewDecoder(r.Body).Decode(body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := repository.ApplyMove(r.Context(), matchID, userID, body.Position, body.Mark); err != nil {
			writeRepositoryError(w, err, "failed to apply move")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleResetMatch(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := mux.Vars(r)["matchID"]

		if err := repository.ResetMatch(r.Context(), matchID); err != nil {
			writeRepositoryError(w, err, "failed to reset match")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleCancelMatch(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := mux.Vars(r)["matchID"]

		if err := repository.CancelMatch(r.Context(), matchID); err != nil {
			writeRepositoryError(w, err, "failed to cancel match")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleDeleteMatch(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := mux.Vars(r)["matchID"]

		if err := repository.DeleteMatch(r.Context(), matchID); err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Match not found", http.StatusNotFound)
				return
			}
			log.Error("failed to delete match: %v", err)
			http.Error(w, "Failed to delete match", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func writeMatch(w http.ResponseWriter, m *match.Match) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m); err != nil {
		log.Error("failed to encode match: %v", err)
		http.Error(w, "Failed to encode match", http.StatusInternalServerError)
	}
}

// writeRepositoryError maps repository failures onto the HTTP surface.
// Rejection reasons are passed through verbatim so clients can report
// them as-is.
func writeRepositoryError(w http.ResponseWriter, err error, logMessage string) {
	switch {
	case repositories.IsNotFound(err):
		http.Error(w, "Match not found", http.StatusNotFound)
	case repositories.IsMatchFull(err), repositories.IsAlreadyInMatch(err), repositories.IsInvalidMove(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error("%s: %v", logMessage, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
