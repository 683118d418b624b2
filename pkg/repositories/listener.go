package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/jackc/pgx/v5"
)

const listenerRetryInterval = 5 * time.Second

// PostgresListener consumes pg_notify payloads published by the
// PostgresRepository and forwards them to a ChangeNotifier. It holds a
// dedicated connection, separate from the repository pool.
type PostgresListener struct {
	connStr  string
	notifier ChangeNotifier
}

type NewPostgresListenerOptions struct {
	ConnStr  string
	Notifier ChangeNotifier
}

func NewPostgresListener(opts NewPostgresListenerOptions) *PostgresListener {
	return &PostgresListener{
		connStr:  opts.ConnStr,
		notifier: opts.Notifier,
	}
}

// Start listens for committed changes until the context is canceled,
// reconnecting after connection failures.
func (l *PostgresListener) Start(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Listener error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(listenerRetryInterval):
		}
	}
}

func (l *PostgresListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connStr)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	log.Info("Listening for match changes on %s", notifyChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handlePayload(notification.Payload)
	}
}

func (l *PostgresListener) handlePayload(payload string) {
	change := &changeNotification{}
	if err := json.Unmarshal([]byte(payload), change); err != nil {
		log.Error("Failed to unmarshal change notification: %v", err)
		return
	}

	switch change.Op {
	case changeOpUpdate:
		if change.Match == nil {
			log.Error("Update notification missing match record")
			return
		}
		l.notifier.MatchUpdated(change.Match)
	case changeOpDelete:
		l.notifier.MatchDeleted(change.MatchID)
	default:
		log.Warn("Unknown change notification op: %s", change.Op)
	}
}
