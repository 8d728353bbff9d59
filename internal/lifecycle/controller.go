package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/permitdesk/folio/internal/allocator"
	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/logger"
	"github.com/permitdesk/folio/internal/notify"
	"github.com/permitdesk/folio/internal/registry"
	"github.com/permitdesk/folio/internal/scheduler"
	"github.com/permitdesk/folio/internal/storage"
)

// ErrAlreadyResolved is returned when a trigger arrives after the folio
// left PENDING. Informational, not a failure: another trigger already won.
var ErrAlreadyResolved = errors.New("folio already resolved")

// Options configures the lifecycle controller.
type Options struct {
	// Countdown is the payment deadline measured from issuance.
	Countdown time.Duration
	// ReminderOffsets are remaining-time checkpoints for reminders.
	ReminderOffsets []time.Duration
}

// Controller owns the folio state machine. It issues folios, hands them
// to the countdown scheduler, and applies the transition triggered by
// user confirmation, administrative override, explicit stop, or expiry.
type Controller struct {
	// store persists folio records.
	store storage.Store
	// alloc issues fresh folio identifiers.
	alloc *allocator.Allocator
	// registry tracks live countdown entries.
	registry *registry.Registry
	// scheduler runs the per-folio countdown tasks.
	scheduler *scheduler.Scheduler
	// notifier delivers terminal notifications.
	notifier notify.Notifier
	// opts holds the countdown policy.
	opts Options
	// taskCtx parents every countdown task so shutdown unwinds them all.
	taskCtx context.Context //nolint:containedctx // Countdown tasks must outlive the issuing request.
}

// NewController wires the lifecycle core together. taskCtx is the
// process-lifetime context; cancelling it aborts every running countdown.
func NewController(
	taskCtx context.Context,
	store storage.Store,
	alloc *allocator.Allocator,
	reg *registry.Registry,
	notifier notify.Notifier,
	opts Options,
) *Controller {
	c := &Controller{
		store:    store,
		alloc:    alloc,
		registry: reg,
		notifier: notifier,
		opts:     opts,
		taskCtx:  taskCtx,
	}
	c.scheduler = scheduler.New(reg, notifier, c.onExpire)

	return c
}

// Issue allocates a folio for the requester, persists the PENDING record
// atomically with issuance, and starts the countdown. The returned record
// carries the computed deadline for display to the requester.
func (c *Controller) Issue(ctx context.Context, requester domain.Requester, payload json.RawMessage) (*domain.Record, error) {
	f, err := c.alloc.Allocate(ctx, requester)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &domain.Record{
		Folio:     f,
		Requester: requester,
		Status:    domain.StatusPending,
		IssuedAt:  now,
		Deadline:  now.Add(c.opts.Countdown),
		Payload:   payload,
	}

	if err := c.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	cancellable, cancel := context.WithCancel(c.taskCtx)

	if err := c.registry.Track(f, requester, now, record.Deadline, cancel); err != nil {
		// Folios are never reissued, so a duplicate here means the
		// invariant was broken upstream. Undo the issuance.
		cancel()

		if deleteErr := c.store.Delete(ctx, f); deleteErr != nil {
			logger.ErrorKV(ctx, "Rollback of duplicate issuance failed", "folio", f, "error", deleteErr)
		}

		return nil, err
	}

	c.scheduler.Start(cancellable, f, requester, record.Deadline, c.opts.Countdown, c.opts.ReminderOffsets)

	logger.InfoKV(ctx, "Folio issued",
		"folio", f, "requester", requester, "deadline", record.Deadline)

	return record.Clone(), nil
}

// Confirm applies the user-confirmation transition: PENDING -> CONFIRMED.
func (c *Controller) Confirm(ctx context.Context, f domain.Folio) error {
	return c.resolve(ctx, f, domain.StatusConfirmed, notify.KindConfirmed, "")
}

// Override applies the administrative transition: PENDING -> OVERRIDDEN.
func (c *Controller) Override(ctx context.Context, f domain.Folio, actor *domain.Actor) error {
	resolvedBy := ""
	if actor != nil {
		resolvedBy = actor.Username + "@" + actor.Hostname
	}

	return c.resolve(ctx, f, domain.StatusOverridden, notify.KindOverridden, resolvedBy)
}

// Stop applies the explicit-stop transition: PENDING -> STOPPED.
func (c *Controller) Stop(ctx context.Context, f domain.Folio) error {
	return c.resolve(ctx, f, domain.StatusStopped, notify.KindStopped, "")
}

// resolve performs the shared trigger sequence: atomically claim the
// registry entry (losing the race returns ErrAlreadyResolved), cancel the
// countdown, persist the transition, notify the owner. Persistence and
// notification are best-effort after the cancel: once the timer is gone
// the folio is permanently out of the countdown, because a stuck
// countdown is worse than a slightly inconsistent record.
func (c *Controller) resolve(ctx context.Context, f domain.Folio, status domain.Status, kind notify.Kind, resolvedBy string) error {
	entry, ok := c.registry.Resolve(f)
	if !ok {
		return ErrAlreadyResolved
	}

	var storeErr error

	update := storage.StatusUpdate{
		Status:     status,
		ResolvedAt: time.Now(),
		ResolvedBy: resolvedBy,
	}
	if err := c.store.UpdateStatus(ctx, f, update); err != nil {
		storeErr = fmt.Errorf("persist %s: %w", status, err)
		logger.ErrorKV(ctx, "Status transition not persisted",
			"folio", f, "status", status, "error", err)
	}

	message := notify.Message{
		Folio:    f,
		Kind:     kind,
		Deadline: entry.Deadline,
	}
	if err := c.notifier.Notify(ctx, entry.Requester, message); err != nil {
		logger.ErrorKV(ctx, "Terminal notification failed",
			"folio", f, "kind", kind, "error", err)
	}

	logger.InfoKV(ctx, "Folio resolved", "folio", f, "status", status)

	return storeErr
}

// onExpire is invoked only by the countdown scheduler when the deadline
// passes. The registry claim settles the race against concurrent
// triggers; a lost claim means another trigger won while the expiry
// proposal was in flight. An expired folio is purged from the store
// rather than archived.
func (c *Controller) onExpire(ctx context.Context, f domain.Folio) {
	entry, ok := c.registry.Resolve(f)
	if !ok {
		return
	}

	if err := c.store.Delete(ctx, f); err != nil {
		logger.ErrorKV(ctx, "Expired record not deleted", "folio", f, "error", err)
	}

	message := notify.Message{
		Folio:    f,
		Kind:     notify.KindExpired,
		Deadline: entry.Deadline,
	}
	if err := c.notifier.Notify(ctx, entry.Requester, message); err != nil {
		logger.ErrorKV(ctx, "Expiry notification failed", "folio", f, "error", err)
	}

	logger.InfoKV(ctx, "Folio expired", "folio", f, "requester", entry.Requester)
}

// Status reports the persisted record and, when the folio is still
// pending, the time remaining before its deadline.
func (c *Controller) Status(ctx context.Context, f domain.Folio) (*domain.Record, time.Duration, error) {
	record, err := c.store.FindByFolio(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	remaining, _ := c.registry.RemainingTime(f)

	return record, remaining, nil
}

// PendingByRequester lists the folios the requester currently has under
// countdown.
func (c *Controller) PendingByRequester(requester domain.Requester) []domain.Folio {
	return c.registry.ListByRequester(requester)
}

// Shutdown waits for all countdown tasks to observe cancellation of the
// task context and exit.
func (c *Controller) Shutdown() {
	c.scheduler.Wait()
}
