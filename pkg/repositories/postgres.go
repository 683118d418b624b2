package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is the LISTEN/NOTIFY channel committed changes are
// published on. Payloads are changeNotification JSON.
const notifyChannel = "gridlock_matches"

type changeNotification struct {
	Op      string       `json:"op"`
	Match   *match.Match `json:"match,omitempty"`
	MatchID string       `json:"match_id,omitempty"`
}

const (
	changeOpUpdate = "UPDATE"
	changeOpDelete = "DELETE"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a Postgres-backed repository. Committed
// changes are published via pg_notify in the same transaction, so a
// PostgresListener is the notifier for this implementation.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %v", err)
	}

	var username string
	var database string
	if err := pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database); err != nil {
		return nil, fmt.Errorf("failed to query database: %v", err)
	}
	log.Info("Connected to %s as %s", database, username)

	return &PostgresRepository{
		pool: pool,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) CreateMatch(ctx context.Context, playerID string) (*match.Match, error) {
	now := time.Now().UTC()
	m := &match.Match{
		ID:          uuid.NewString(),
		PlayerX:     playerID,
		Board:       match.EmptyBoard(),
		CurrentTurn: match.MarkX,
		Status:      match.StatusWaiting,
		TurnNumber:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	q := `
	INSERT INTO matches (id, player_x, player_o, board, current_turn, status, turn_number, created_at, updated_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL);
	`
	_, err := r.pool.Exec(ctx, q, m.ID, m.PlayerX, m.PlayerO, m.Board.String(), m.CurrentTurn.String(), string(m.Status), m.TurnNumber, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert match: %v", err)
	}

	return m, nil
}

func (r *PostgresRepository) GetMatch(ctx context.Context, matchID string) (*match.Match, error) {
	q := matchSelect + ` WHERE id = $1;`
	return scanMatchPgx(r.pool.QueryRow(ctx, q, matchID))
}

func (r *PostgresRepository) JoinMatch(ctx context.Context, matchID string, playerID string) (*match.Match, error) {
	var joined *match.Match
	err := r.inTransaction(ctx, func(tx pgx.Tx) error {
		m, err := getMatchForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}

		updated, err := applyJoin(m, playerID, time.Now().UTC())
		if err != nil {
			return err
		}
		if updated == nil {
			joined = m
			return nil
		}

		if err := updateAndNotify(ctx, tx, updated); err != nil {
			return err
		}
		joined = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return joined, nil
}

func (r *PostgresRepository) ApplyMove(ctx context.Context, matchID string, playerID string, position int, mark match.Mark) error {
	return r.inTransaction(ctx, func(tx pgx.Tx) error {
		m, err := getMatchForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}

		updated, err := applyMove(m, playerID, position, mark, time.Now().UTC())
		if err != nil {
			return err
		}

		return updateAndNotify(ctx, tx, updated)
	})
}

func (r *PostgresRepository) ResetMatch(ctx context.Context, matchID string) error {
	return r.inTransaction(ctx, func(tx pgx.Tx) error {
		m, err := getMatchForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}

		return updateAndNotify(ctx, tx, applyReset(m, time.Now().UTC()))
	})
}

func (r *PostgresRepository) CancelMatch(ctx context.Context, matchID string) error {
	return r.inTransaction(ctx, func(tx pgx.Tx) error {
		m, err := getMatchForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}

		updated := applyCancel(m, time.Now().UTC())
		if updated == nil {
			return nil
		}

		return updateAndNotify(ctx, tx, updated)
	})
}

func (r *PostgresRepository) DeleteMatch(ctx context.Context, matchID string) error {
	return r.inTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM matches WHERE id = $1;`, matchID)
		if err != nil {
			return fmt.Errorf("failed to delete match: %v", err)
		}
		if tag.RowsAffected() == 0 {
			return &ErrNotFound{}
		}

		return notifyChange(ctx, tx, &changeNotification{
			Op:      changeOpDelete,
			MatchID: matchID,
		})
	})
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	q := `
	SELECT id FROM matches
	WHERE (finished_at IS NOT NULL AND finished_at < $1) OR updated_at < $1;
	`
	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to query stale matches: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan match id: %v", err)
		}
		ids = append(ids, id)
	}

	deleted := 0
	for _, id := range ids {
		if err := r.DeleteMatch(ctx, id); err != nil {
			if IsNotFound(err) {
				continue
			}
			return deleted, err
		}
		deleted++
	}

	return deleted, nil
}

func (r *PostgresRepository) inTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func getMatchForUpdate(ctx context.Context, tx pgx.Tx, matchID string) (*match.Match, error) {
	q := matchSelect + ` WHERE id = $1 FOR UPDATE;`
	return scanMatchPgx(tx.QueryRow(ctx, q, matchID))
}

func scanMatchPgx(row pgx.Row) (*match.Match, error) {
	var m match.Match
	var board string
	var currentTurn string
	var status string
	var finishedAt *time.Time
	err := row.Scan(&m.ID, &m.PlayerX, &m.PlayerO, &board, &currentTurn, &status, &m.TurnNumber, &m.CreatedAt, &m.UpdatedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan match: %v", err)
	}

	parsedBoard, err := match.ParseBoard(board)
	if err != nil {
		return nil, fmt.Errorf("failed to parse board: %v", err)
	}
	m.Board = parsedBoard

	parsedTurn, err := match.ParseMark(currentTurn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse current turn: %v", err)
	}
	m.CurrentTurn = parsedTurn

	m.Status = match.Status(status)
	m.FinishedAt = finishedAt

	return &m, nil
}

func updateAndNotify(ctx context.Context, tx pgx.Tx, m *match.Match) error {
	q := `
	UPDATE matches
	SET player_o = $1, board = $2, current_turn = $3, status = $4, turn_number = $5, updated_at = $6, finished_at = $7
	WHERE id = $8;
	`
	var finishedAt *time.Time
	if m.FinishedAt != nil {
		finishedAt = m.FinishedAt
	}
	_, err := tx.Exec(ctx, q, m.PlayerO, m.Board.String(), m.CurrentTurn.String(), string(m.Status), m.TurnNumber, m.UpdatedAt, finishedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update match: %v", err)
	}

	return notifyChange(ctx, tx, &changeNotification{
		Op:    changeOpUpdate,
		Match: m,
	})
}

func notifyChange(ctx context.Context, tx pgx.Tx, notification *changeNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal change notification: %v", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2);`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify change: %v", err)
	}
	return nil
}
