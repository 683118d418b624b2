package repositories

import (
	"context"
	"time"

	"github.com/cbodonnell/gridlock/pkg/match"
)

// Repository is the authoritative store of match records. JoinMatch and
// ApplyMove validate and mutate atomically, since two clients may submit
// concurrently and only the store can serialize them.
type Repository interface {
	Close(ctx context.Context) error
	CreateMatch(ctx context.Context, playerID string) (*match.Match, error)
	GetMatch(ctx context.Context, matchID string) (*match.Match, error)
	JoinMatch(ctx context.Context, matchID string, playerID string) (*match.Match, error)
	ApplyMove(ctx context.Context, matchID string, playerID string, position int, mark match.Mark) error
	ResetMatch(ctx context.Context, matchID string) error
	CancelMatch(ctx context.Context, matchID string) error
	DeleteMatch(ctx context.Context, matchID string) error
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}

// ChangeNotifier receives committed changes to match records so they can
// be pushed to subscribed clients. Implementations must not block.
type ChangeNotifier interface {
	MatchUpdated(m *match.Match)
	MatchDeleted(matchID string)
}
