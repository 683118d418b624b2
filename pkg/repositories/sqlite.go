package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db       *sql.DB
	notifier ChangeNotifier
}

// NewSQLiteRepository opens a SQLite-backed repository, applying the
// migrations found in the given directory. The notifier may be nil, in
// which case committed changes are not pushed anywhere.
func NewSQLiteRepository(ctx context.Context, path string, migrations string, notifier ChangeNotifier) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	dir, err := os.ReadDir(migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	for _, entry := range dir {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return &SQLiteRepository{
		db:       db,
		notifier: notifier,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateMatch(ctx context.Context, playerID string) (*match.Match, error) {
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
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL);
	`
	_, err := r.db.ExecContext(ctx, q, m.ID, m.PlayerX, m.PlayerO, m.Board.String(), m.CurrentTurn.String(), string(m.Status), m.TurnNumber, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert match: %v", err)
	}

	return m, nil
}

func (r *SQLiteRepository) GetMatch(ctx context.Context, matchID string) (*match.Match, error) {
	q := matchSelect + ` WHERE id = ?;`
	return scanMatch(r.db.QueryRowContext(ctx, q, matchID))
}

func (r *SQLiteRepository) JoinMatch(ctx context.Context, matchID string, playerID string) (*match.Match, error) {
	var joined *match.Match
	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		m, err := getMatchTx(ctx, tx, matchID)
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

		if err := updateMatchTx(ctx, tx, updated); err != nil {
			return err
		}
		joined = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.notifyUpdated(joined)
	return joined, nil
}

func (r *SQLiteRepository) ApplyMove(ctx context.Context, matchID string, playerID string, position int, mark match.Mark) error {
	var moved *match.Match
	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		m, err := getMatchTx(ctx, tx, matchID)
		if err != nil {
			return err
		}

		updated, err := applyMove(m, playerID, position, mark, time.Now().UTC())
		if err != nil {
			return err
		}

		if err := updateMatchTx(ctx, tx, updated); err != nil {
			return err
		}
		moved = updated
		return nil
	})
	if err != nil {
		return err
	}

	r.notifyUpdated(moved)
	return nil
}

func (r *SQLiteRepository) ResetMatch(ctx context.Context, matchID string) error {
	var reset *match.Match
	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		m, err := getMatchTx(ctx, tx, matchID)
		if err != nil {
			return err
		}

		updated := applyReset(m, time.Now().UTC())
		if err := updateMatchTx(ctx, tx, updated); err != nil {
			return err
		}
		reset = updated
		return nil
	})
	if err != nil {
		return err
	}

	r.notifyUpdated(reset)
	return nil
}

func (r *SQLiteRepository) CancelMatch(ctx context.Context, matchID string) error {
	var canceled *match.Match
	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		m, err := getMatchTx(ctx, tx, matchID)
		if err != nil {
			return err
		}

		updated := applyCancel(m, time.Now().UTC())
		if updated == nil {
			return nil
		}

		if err := updateMatchTx(ctx, tx, updated); err != nil {
			return err
		}
		canceled = updated
		return nil
	})
	if err != nil {
		return err
	}

	if canceled != nil {
		r.notifyUpdated(canceled)
	}
	return nil
}

func (r *SQLiteRepository) DeleteMatch(ctx context.Context, matchID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM matches WHERE id = ?;`, matchID)
	if err != nil {
		return fmt.Errorf("failed to delete match: %v", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if rows == 0 {
		return &ErrNotFound{}
	}

	if r.notifier != nil {
		r.notifier.MatchDeleted(matchID)
	}
	return nil
}

func (r *SQLiteRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	q := `
	SELECT id FROM matches
	WHERE (finished_at IS NOT NULL AND finished_at < ?) OR updated_at < ?;
	`
	rows, err := r.db.QueryContext(ctx, q, cutoff, cutoff)
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

func (r *SQLiteRepository) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) notifyUpdated(m *match.Match) {
	if r.notifier != nil && m != nil {
		r.notifier.MatchUpdated(m)
	}
}

const matchSelect = `
SELECT id, player_x, player_o, board, current_turn, status, turn_number, created_at, updated_at, finished_at
FROM matches`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*match.Match, error) {
	var m match.Match
	var board string
	var currentTurn string
	var status string
	var finishedAt sql.NullTime
	err := row.Scan(&m.ID, &m.PlayerX, &m.PlayerO, &board, &currentTurn, &status, &m.TurnNumber, &m.CreatedAt, &m.UpdatedAt, &finishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
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
	if finishedAt.Valid {
		t := finishedAt.Time
		m.FinishedAt = &t
	}

	return &m, nil
}

func getMatchTx(ctx context.Context, tx *sql.Tx, matchID string) (*match.Match, error) {
	q := matchSelect + ` WHERE id = ?;`
	return scanMatch(tx.QueryRowContext(ctx, q, matchID))
}

func updateMatchTx(ctx context.Context, tx *sql.Tx, m *match.Match) error {
	q := `
	UPDATE matches
	SET player_o = ?, board = ?, current_turn = ?, status = ?, turn_number = ?, updated_at = ?, finished_at = ?
	WHERE id = ?;
	`
	var finishedAt interface{}
	if m.FinishedAt != nil {
		finishedAt = *m.FinishedAt
	}
	_, err := tx.ExecContext(ctx, q, m.PlayerO, m.Board.String(), m.CurrentTurn.String(), string(m.Status), m.TurnNumber, m.UpdatedAt, finishedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update match: %v", err)
	}
	return nil
}
