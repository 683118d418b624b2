// Package session owns the client side of a match: it issues repository
// calls for user actions, keeps a single cached snapshot of the match
// record, and reconciles it against change feed notifications.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/cbodonnell/gridlock/pkg/feed"
	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/match"
)

// IdentityProvider supplies a stable opaque identifier for the local
// participant.
type IdentityProvider interface {
	Resolve(ctx context.Context) (string, error)
}

// MatchRepository is the controller's view of the remote record store.
// JoinMatch and ApplyMove are atomic remote procedures; the store is the
// sole arbiter of move legality and turn order.
type MatchRepository interface {
	CreateMatch(ctx context.Context, playerID string) (*match.Match, error)
	JoinMatch(ctx context.Context, matchID string, playerID string) (*match.Match, error)
	ApplyMove(ctx context.Context, matchID string, playerID string, position int, mark match.Mark) error
	ResetMatch(ctx context.Context, matchID string) error
	CancelMatch(ctx context.Context, matchID string) error
}

// NotificationSink is a presentation-agnostic surface for terminal
// conditions and call failures. Report must not block.
type NotificationSink interface {
	Report(message string)
}

const (
	noticeMatchCanceled = "Match canceled"
	noticeMatchExpired  = "This match has expired or was cleaned up"
)

// Controller keeps the local snapshot of at most one active match and
// exactly one live feed subscription, bound 1:1 to that match id.
//
// All snapshot writes are serialized by a single mutex: user actions
// mutate it synchronously, feed events mutate it from the subscription's
// consumer goroutine. The snapshot is always replaced wholesale, never
// patched.
type Controller struct {
	identity IdentityProvider
	repo     MatchRepository
	feed     feed.ChangeFeed
	sink     NotificationSink

	mu       sync.Mutex
	playerID string
	snapshot *match.Match
	sub      feed.Subscription
}

type NewControllerOptions struct {
	Identity   IdentityProvider
	Repository MatchRepository
	Feed       feed.ChangeFeed
	Sink       NotificationSink
}

func NewController(opts NewControllerOptions) *Controller {
	return &Controller{
		identity: opts.Identity,
		repo:     opts.Repository,
		feed:     opts.Feed,
		sink:     opts.Sink,
	}
}

// StartSession resolves the local participant's identity. It must
// succeed before a match can be created or joined.
func (c *Controller) StartSession(ctx context.Context) error {
	playerID, err := c.identity.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
	log.Info("Session started as %s", playerID)
	return nil
}

// PlayerID returns the resolved local identity, or empty if the session
// has not been started.
func (c *Controller) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Snapshot returns a copy of the cached match record, or nil when no
// match is active.
func (c *Controller) Snapshot() *match.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// CreateMatch creates a fresh waiting match with the local participant
// as player X and subscribes to its change feed. Any previously active
// session is torn down first. On failure the local state is unchanged.
func (c *Controller) CreateMatch(ctx context.Context) error {
	playerID, err := c.requireIdentity()
	if err != nil {
		return err
	}

	m, err := c.repo.CreateMatch(ctx, playerID)
	if err != nil {
		c.sink.Report(err.Error())
		return fmt.Errorf("failed to create match: %v", err)
	}

	return c.bind(ctx, m)
}

// JoinMatch joins an existing match as player O via the atomic join
// procedure and subscribes to its change feed. Failures are reported
// verbatim and leave the local state unchanged.
func (c *Controller) JoinMatch(ctx context.Context, matchID string) error {
	playerID, err := c.requireIdentity()
	if err != nil {
		return err
	}

	m, err := c.repo.JoinMatch(ctx, matchID, playerID)
	if err != nil {
		c.sink.Report(err.Error())
		return fmt.Errorf("failed to join match: %v", err)
	}

	return c.bind(ctx, m)
}

// SubmitMove submits a move for the local participant. The mark is
// computed locally as a hint only; the repository validates the move and
// the authoritative result arrives via the change feed, so no local
// board mutation happens here. A call with no active match is a no-op.
func (c *Controller) SubmitMove(ctx context.Context, position int) error {
	c.mu.Lock()
	if c.snapshot == nil {
		c.mu.Unlock()
		return nil
	}
	matchID := c.snapshot.ID
	playerID := c.playerID
	mark := c.snapshot.MarkFor(playerID)
	c.mu.Unlock()

	if err := c.repo.ApplyMove(ctx, matchID, playerID, position, mark); err != nil {
		log.Debug("Move rejected for match %s: %v", matchID, err)
		return fmt.Errorf("failed to apply move: %v", err)
	}
	return nil
}

// RestartMatch resets the active match to a fresh in-progress state,
// reusing the same id. The reset is idempotent under retry. A call with
// no active match is a no-op.
func (c *Controller) RestartMatch(ctx context.Context) error {
	c.mu.Lock()
	if c.snapshot == nil {
		c.mu.Unlock()
		return nil
	}
	matchID := c.snapshot.ID
	c.mu.Unlock()

	if err := c.repo.ResetMatch(ctx, matchID); err != nil {
		c.sink.Report(err.Error())
		return fmt.Errorf("failed to restart match: %v", err)
	}
	return nil
}

// LeaveMatch leaves the active match. An in-progress match is canceled
// through the repository so both participants observe the cancellation
// on the feed; local state is cleared only when that notification
// arrives. Otherwise the session is cleared immediately. A call with no
// active match is a no-op.
func (c *Controller) LeaveMatch(ctx context.Context) error {
	c.mu.Lock()
	if c.snapshot == nil {
		c.mu.Unlock()
		return nil
	}

	if c.snapshot.Status == match.StatusInProgress {
		matchID := c.snapshot.ID
		c.mu.Unlock()

		if err := c.repo.CancelMatch(ctx, matchID); err != nil {
			c.sink.Report(err.Error())
			return fmt.Errorf("failed to cancel match: %v", err)
		}
		return nil
	}

	c.clearLocked()
	c.mu.Unlock()
	return nil
}

func (c *Controller) requireIdentity() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playerID == "" {
		return "", fmt.Errorf("session has not been started")
	}
	return c.playerID, nil
}

// bind replaces any active session with the given match record and
// opens the feed subscription for its id. Unsubscribe-before-resubscribe
// keeps the one-subscription invariant by construction.
func (c *Controller) bind(ctx context.Context, m *match.Match) error {
	c.mu.Lock()
	c.clearLocked()
	c.snapshot = m.Clone()
	c.mu.Unlock()

	sub, err := c.feed.Subscribe(ctx, m.ID)
	if err != nil {
		c.mu.Lock()
		c.snapshot = nil
		c.mu.Unlock()
		c.sink.Report(err.Error())
		return fmt.Errorf("failed to subscribe to match %s: %v", m.ID, err)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	go c.consume(sub)
	return nil
}

// consume drains one subscription until its channel closes. The channel
// closes when the controller unsubscribes or the feed ends the
// subscription.
func (c *Controller) consume(sub feed.Subscription) {
	for event := range sub.Events() {
		switch event.Type {
		case feed.EventTypeUpdated:
			c.handleUpdated(sub, event.Match)
		case feed.EventTypeDeleted:
			c.handleDeleted(sub)
		}
	}
}

func (c *Controller) handleUpdated(sub feed.Subscription, m *match.Match) {
	c.mu.Lock()
	if c.sub != sub || c.snapshot == nil || m == nil || m.ID != c.snapshot.ID {
		c.mu.Unlock()
		return
	}

	// At-least-once, loosely ordered delivery can replay older commits;
	// updated_at is monotone for a row under the single serializing
	// writer, so strictly older records are discarded.
	if m.UpdatedAt.Before(c.snapshot.UpdatedAt) {
		log.Debug("Discarding stale notification for match %s", m.ID)
		c.mu.Unlock()
		return
	}

	if m.Status == match.StatusCanceled {
		c.clearLocked()
		c.mu.Unlock()
		c.sink.Report(noticeMatchCanceled)
		return
	}

	c.snapshot = m.Clone()
	c.mu.Unlock()
}

func (c *Controller) handleDeleted(sub feed.Subscription) {
	c.mu.Lock()
	if c.sub != sub {
		c.mu.Unlock()
		return
	}

	c.clearLocked()
	c.mu.Unlock()
	c.sink.Report(noticeMatchExpired)
}

// clearLocked drops the snapshot and closes the live subscription. It is
// safe to call on an already-cleared session, which is how the local
// leave path and the remote cancellation path converge without duplicate
// side effects. Callers must hold c.mu.
func (c *Controller) clearLocked() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	c.snapshot = nil
}
