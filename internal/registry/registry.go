package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/permitdesk/folio/internal/domain/folio"
)

// ErrDuplicateTimer is returned when tracking a folio that already has a
// live timer entry. At most one entry may exist per folio at any instant.
var ErrDuplicateTimer = errors.New("timer already tracked for folio")

// Entry is the in-memory bookkeeping for one pending folio's countdown.
type Entry struct {
	// Folio is the tracked identifier.
	Folio domain.Folio
	// Requester owns the folio.
	Requester domain.Requester
	// StartTime is when the countdown began.
	StartTime time.Time
	// Deadline is the countdown's absolute expiry instant.
	Deadline time.Time
	// cancel signals the folio's countdown task. Idempotent.
	cancel context.CancelFunc
}

// Registry is the single source of truth for which folios currently have
// an active deadline. Pure bookkeeping, no I/O. One mutex serializes all
// access; every operation is an O(1) map mutation, so finer-grained
// locking buys nothing.
type Registry struct {
	// mu guards entries and byRequester.
	mu sync.Mutex
	// entries maps each tracked folio to its timer entry.
	entries map[domain.Folio]*Entry
	// byRequester indexes tracked folios by their owner.
	byRequester map[domain.Requester]map[domain.Folio]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries:     make(map[domain.Folio]*Entry),
		byRequester: make(map[domain.Requester]map[domain.Folio]struct{}),
	}
}

// Track registers a live timer entry for the folio.
// Fails with ErrDuplicateTimer when the folio is already tracked.
func (r *Registry) Track(f domain.Folio, requester domain.Requester, start, deadline time.Time, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[f]; ok {
		return ErrDuplicateTimer
	}

	r.entries[f] = &Entry{
		Folio:     f,
		Requester: requester,
		StartTime: start,
		Deadline:  deadline,
		cancel:    cancel,
	}

	owned, ok := r.byRequester[requester]
	if !ok {
		owned = make(map[domain.Folio]struct{})
		r.byRequester[requester] = owned
	}

	owned[f] = struct{}{}

	return nil
}

// Resolve atomically removes the folio's entry and signals its cancel
// handle. The second return value reports whether the folio was still
// tracked: exactly one caller racing on the same folio observes true,
// everyone else false. An untracked folio is a valid outcome, not an
// error; the timer may have self-expired or been cancelled concurrently.
func (r *Registry) Resolve(f domain.Folio) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[f]
	if !ok {
		return nil, false
	}

	delete(r.entries, f)

	if owned, ok := r.byRequester[entry.Requester]; ok {
		delete(owned, f)

		if len(owned) == 0 {
			delete(r.byRequester, entry.Requester)
		}
	}

	entry.cancel()

	return entry, true
}

// Cancel removes the folio's entry and signals its countdown task.
// Returns false when the folio is not tracked.
func (r *Registry) Cancel(f domain.Folio) bool {
	_, ok := r.Resolve(f)

	return ok
}

// Tracked reports whether the folio currently has a live timer entry.
func (r *Registry) Tracked(f domain.Folio) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[f]

	return ok
}

// ListByRequester returns the folios the requester currently has pending.
func (r *Registry) ListByRequester(requester domain.Requester) []domain.Folio {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := r.byRequester[requester]
	if len(owned) == 0 {
		return nil
	}

	folios := make([]domain.Folio, 0, len(owned))
	for f := range owned {
		folios = append(folios, f)
	}

	return folios
}

// RemainingTime returns the time left before the folio's deadline, clamped
// at zero, and whether the folio is tracked at all. Reporting only:
// control decisions always come from explicit events, never from
// polling elapsed time.
func (r *Registry) RemainingTime(f domain.Folio) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[f]
	if !ok {
		return 0, false
	}

	remaining := time.Until(entry.Deadline)
	if remaining < 0 {
		remaining = 0
	}

	return remaining, true
}
