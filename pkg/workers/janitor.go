package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/repositories"
	"github.com/go-co-op/gocron/v2"
)

// JanitorWorker periodically deletes stale match records: terminal
// matches past the retention window and matches abandoned by clients
// that disconnected without leaving. Subscribed clients observe the
// deletions on the change feed.
type JanitorWorker struct {
	repository repositories.Repository
	interval   time.Duration
	ttl        time.Duration
	scheduler  gocron.Scheduler
}

type NewJanitorWorkerOptions struct {
	Repository repositories.Repository
	// Interval is how often the sweep runs.
	Interval time.Duration
	// TTL is how long a match may go without an update before it is
	// considered stale.
	TTL time.Duration
}

func NewJanitorWorker(opts NewJanitorWorkerOptions) (*JanitorWorker, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %v", err)
	}

	return &JanitorWorker{
		repository: opts.Repository,
		interval:   opts.Interval,
		ttl:        opts.TTL,
		scheduler:  scheduler,
	}, nil
}

// Start schedules the sweep and runs until the context is canceled.
func (w *JanitorWorker) Start(ctx context.Context) error {
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			w.sweep(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule janitor job: %v", err)
	}

	w.scheduler.Start()
	log.Info("Janitor sweeping every %s with a %s TTL", w.interval, w.ttl)

	<-ctx.Done()
	return w.scheduler.Shutdown()
}

func (w *JanitorWorker) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.ttl)
	deleted, err := w.repository.DeleteStale(ctx, cutoff)
	if err != nil {
		log.Error("Failed to delete stale matches: %v", err)
		return
	}
	if deleted > 0 {
		log.Info("Deleted %d stale matches", deleted)
	}
}
