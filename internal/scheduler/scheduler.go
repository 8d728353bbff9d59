package scheduler

import (
	"context"
	"sync"
	"time"

	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/logger"
	"github.com/permitdesk/folio/internal/notify"
	"github.com/permitdesk/folio/internal/registry"
)

// ExpireFunc is invoked by a countdown task whose deadline passed while
// the folio was still tracked. It proposes the EXPIRE transition; the
// lifecycle controller decides whether the proposal wins.
type ExpireFunc func(ctx context.Context, f domain.Folio)

// Scheduler runs one independent countdown task per issued folio. Each
// task sleeps between reminder checkpoints, re-checks the registry at
// every wake point, emits reminders through the notification port, and
// proposes expiry at the deadline. Cancellation is cooperative: the task
// context stored in the registry unwinds all remaining stages at once.
type Scheduler struct {
	// registry answers "is this folio still pending" at wake points.
	registry *registry.Registry
	// notifier delivers reminder messages.
	notifier notify.Notifier
	// expire proposes the terminal expiry transition.
	expire ExpireFunc
	// wg tracks running countdown tasks for graceful shutdown.
	wg sync.WaitGroup
}

// New wires a scheduler to the registry, the notification port, and the
// controller's expiry entry point.
func New(reg *registry.Registry, notifier notify.Notifier, expire ExpireFunc) *Scheduler {
	return &Scheduler{
		registry: reg,
		notifier: notifier,
		expire:   expire,
	}
}

// Start launches the countdown task for a freshly issued folio. The
// offsets are remaining-time checkpoints, strictly decreasing and all
// below total; validation happens at configuration load, not here. The
// context must be the cancellable task context whose cancel handle the
// registry stores for this folio.
func (s *Scheduler) Start(ctx context.Context, f domain.Folio, requester domain.Requester, deadline time.Time, total time.Duration, offsets []time.Duration) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.run(ctx, f, requester, deadline, total, offsets)
	}()
}

// Wait blocks until every countdown task has finished. Used on shutdown
// after the parent context is cancelled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// run executes the staged delay sequence for one folio.
func (s *Scheduler) run(ctx context.Context, f domain.Folio, requester domain.Requester, deadline time.Time, total time.Duration, offsets []time.Duration) {
	ctx = logger.WithKV(ctx, "folio", f)

	// Each wait is the gap between successive remaining-time values:
	// the first runs from issuance to the earliest checkpoint, the
	// last from the final checkpoint to the deadline itself.
	previous := total

	for _, remaining := range offsets {
		if !sleep(ctx, previous-remaining) {
			return
		}

		// Cancellation check: a folio no longer tracked was resolved
		// while we slept; terminate without emitting anything.
		if !s.registry.Tracked(f) {
			return
		}

		message := notify.Message{
			Folio:     f,
			Kind:      notify.KindReminder,
			Remaining: remaining,
			Deadline:  deadline,
		}

		if err := s.notifier.Notify(ctx, requester, message); err != nil {
			logger.ErrorKV(ctx, "Reminder delivery failed", "remaining", remaining, "error", err)
		}

		previous = remaining
	}

	// Remainder until the absolute deadline.
	if !sleep(ctx, previous) {
		return
	}

	if !s.registry.Tracked(f) {
		return
	}

	s.expire(ctx, f)
}

// sleep suspends for the given duration. Returns false when the task
// context was cancelled first, which aborts the whole remaining sequence.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
