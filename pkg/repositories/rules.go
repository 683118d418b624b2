package repositories

import (
	"time"

	"github.com/cbodonnell/gridlock/pkg/match"
)

// applyJoin validates a join against the current record and returns the
// mutated copy. A nil result with nil error means the join was already
// applied (retry of a committed join).
func applyJoin(m *match.Match, playerID string, now time.Time) (*match.Match, error) {
	if playerID == m.PlayerX {
		return nil, &ErrAlreadyInMatch{}
	}
	if m.PlayerO != "" {
		if playerID == m.PlayerO {
			return nil, nil
		}
		return nil, &ErrMatchFull{}
	}
	if m.Status != match.StatusWaiting {
		return nil, &ErrMatchFull{}
	}

	updated := m.Clone()
	updated.PlayerO = playerID
	updated.Status = match.StatusInProgress
	updated.UpdatedAt = now
	return updated, nil
}

// applyMove validates a move against the current record and returns the
// mutated copy, including any resulting finished transition.
func applyMove(m *match.Match, playerID string, position int, mark match.Mark, now time.Time) (*match.Match, error) {
	if m.Status != match.StatusInProgress {
		return nil, &ErrInvalidMove{Reason: "match is not in progress"}
	}
	if playerID != m.PlayerX && playerID != m.PlayerO {
		return nil, &ErrInvalidMove{Reason: "player is not a participant"}
	}
	if mark != m.MarkFor(playerID) {
		return nil, &ErrInvalidMove{Reason: "mark does not belong to player"}
	}
	if mark != m.CurrentTurn {
		return nil, &ErrInvalidMove{Reason: "not your turn"}
	}
	if !match.ValidPosition(position) {
		return nil, &ErrInvalidMove{Reason: "position out of range"}
	}
	if m.Board[position] != match.MarkEmpty {
		return nil, &ErrInvalidMove{Reason: "cell is occupied"}
	}

	updated := m.Clone()
	updated.Board[position] = mark
	updated.TurnNumber++
	updated.UpdatedAt = now

	if _, won := updated.Board.Winner(); won || updated.Board.Full() {
		updated.Status = match.StatusFinished
		finishedAt := now
		updated.FinishedAt = &finishedAt
	} else {
		updated.CurrentTurn = mark.Other()
	}

	return updated, nil
}

// applyReset returns the record reset to a fresh in-progress state.
// Applying it twice yields the same result.
func applyReset(m *match.Match, now time.Time) *match.Match {
	updated := m.Clone()
	updated.Board = match.EmptyBoard()
	updated.CurrentTurn = match.MarkX
	updated.Status = match.StatusInProgress
	updated.TurnNumber = 0
	updated.FinishedAt = nil
	updated.UpdatedAt = now
	return updated
}

// applyCancel returns the record transitioned to canceled, or nil if the
// record is already terminal (retry of a committed cancellation).
func applyCancel(m *match.Match, now time.Time) *match.Match {
	if m.Status.Terminal() {
		return nil
	}

	updated := m.Clone()
	updated.Status = match.StatusCanceled
	finishedAt := now
	updated.FinishedAt = &finishedAt
	updated.UpdatedAt = now
	return updated
}
