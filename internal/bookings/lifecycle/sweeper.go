package lifecycle

import (
	"context"
	"fmt"
	"prayerroom/internal/bookings/events"
	"prayerroom/internal/bookings/repository"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"
	"time"
)

const sweepBatchSize = 100

type PendingFinder interface {
	Query(ctx context.Context, q repository.Query) ([]*model.Booking, error)
}

// Sweeper re-publishes created events for bookings left pending, which
// happens when the original event was lost between commit and dispatch.
type Sweeper struct {
	bookings   PendingFinder
	publisher  events.Publisher
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        *logger.Logger
}

func NewSweeper(bookings PendingFinder, publisher events.Publisher, interval, staleAfter time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		bookings:   bookings,
		publisher:  publisher,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        log,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error("Pending booking sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.log.Info("Re-dispatched stale pending bookings", "count", n)
			}
		}
	}
}

// Sweep re-publishes one batch and returns how many events were published.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.bookings.Query(ctx, repository.Query{
		Statuses:      []string{model.StatusPending},
		UpdatedBefore: s.now().Add(-s.staleAfter),
		Limit:         sweepBatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query pending bookings: %w", err)
	}

	published := 0
	for _, b := range stale {
		if err := s.publisher.Publish(ctx, events.NewCreated(b)); err != nil {
			return published, fmt.Errorf("failed to re-publish booking %s: %w", b.ID, err)
		}
		published++
	}
	return published, nil
}
