package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/permitdesk/folio/internal/allocator"
	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/notify"
	"github.com/permitdesk/folio/internal/registry"
	"github.com/permitdesk/folio/internal/storage"
)

var errStoreDown = errors.New("store down")

// memoryStore is a minimal in-memory Store implementation for tests.
type memoryStore struct {
	// mu guards records.
	mu sync.Mutex
	// records maps folios to their stored records.
	records map[domain.Folio]*domain.Record
	// failUpdate makes UpdateStatus fail when set.
	failUpdate error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[domain.Folio]*domain.Record)}
}

func (m *memoryStore) FindByFolio(_ context.Context, f domain.Folio) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[f]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return record.Clone(), nil
}

func (m *memoryStore) Insert(_ context.Context, record *domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.Folio]; ok {
		return storage.ErrAlreadyExists
	}

	m.records[record.Folio] = record.Clone()

	return nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, f domain.Folio, update storage.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdate != nil {
		return m.failUpdate
	}

	record, ok := m.records[f]
	if !ok {
		return storage.ErrNotFound
	}

	record.Status = update.Status

	return nil
}

func (m *memoryStore) Delete(_ context.Context, f domain.Folio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[f]; !ok {
		return storage.ErrNotFound
	}

	delete(m.records, f)

	return nil
}

func (m *memoryStore) MaxFolioUnderPrefix(_ context.Context, prefix string) (domain.Folio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		top   uint64
		found bool
		best  domain.Folio
	)

	for f := range m.records {
		suffix, err := strconv.ParseUint(strings.TrimPrefix(string(f), prefix), 10, 64)
		if err != nil {
			continue
		}

		if !found || suffix > top {
			top, found, best = suffix, true, f
		}
	}

	if !found {
		return "", storage.ErrNotFound
	}

	return best, nil
}

// recordingNotifier captures every delivered message for assertions.
type recordingNotifier struct {
	// mu guards messages.
	mu sync.Mutex
	// messages accumulates deliveries in order.
	messages []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, _ domain.Requester, message notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, message)

	return nil
}

func (n *recordingNotifier) byKind(kind notify.Kind) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []notify.Message

	for _, m := range n.messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}

	return out
}

// harness bundles a controller with its collaborators for one test.
type harness struct {
	store      *memoryStore
	notifier   *recordingNotifier
	registry   *registry.Registry
	controller *Controller
}

// newHarness builds a controller whose allocator starts at folio "1670".
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	store := newMemoryStore()
	notifier := new(recordingNotifier)
	reg := registry.New()

	alloc, err := allocator.New(context.Background(), store, allocator.Options{
		Prefix:      "1",
		Seed:        670,
		MaxAttempts: 10,
	})
	require.NoError(t, err)

	taskCtx, cancel := context.WithCancel(context.Background())
	controller := NewController(taskCtx, store, alloc, reg, notifier, opts)

	// Cancel before waiting so pending countdowns unwind instead of
	// running out their full durations.
	t.Cleanup(func() {
		cancel()
		controller.Shutdown()
	})

	return &harness{
		store:      store,
		notifier:   notifier,
		registry:   reg,
		controller: controller,
	}
}

// TestScenario_ConfirmMidCountdown mirrors issuing folio "1670" with two
// reminder checkpoints and confirming between them: exactly one reminder,
// status CONFIRMED retained, timer entry gone.
func TestScenario_ConfirmMidCountdown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{
		Countdown:       400 * time.Millisecond,
		ReminderOffsets: []time.Duration{200 * time.Millisecond, 50 * time.Millisecond},
	})

	record, err := h.controller.Issue(context.Background(), "chat-1", json.RawMessage(`{"serie":"XJ12"}`))
	require.NoError(t, err)
	require.Equal(t, domain.Folio("1670"), record.Folio)
	require.Equal(t, domain.StatusPending, record.Status)
	require.True(t, h.registry.Tracked("1670"))

	// Wait for the first reminder (200ms remaining, 200ms elapsed).
	require.Eventually(t, func() bool {
		return len(h.notifier.byKind(notify.KindReminder)) == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, h.controller.Confirm(context.Background(), "1670"))

	// A second confirmation arrives too late.
	require.ErrorIs(t, h.controller.Confirm(context.Background(), "1670"), ErrAlreadyResolved)

	h.controller.Shutdown()

	// Exactly one reminder was ever sent and no expiry followed.
	require.Len(t, h.notifier.byKind(notify.KindReminder), 1)
	require.Len(t, h.notifier.byKind(notify.KindConfirmed), 1)
	require.Empty(t, h.notifier.byKind(notify.KindExpired))

	// Record retained with the terminal status; timer entry absent.
	stored, err := h.store.FindByFolio(context.Background(), "1670")
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, stored.Status)
	require.False(t, h.registry.Tracked("1670"))
}

// TestScenario_FullExpiry mirrors folio "1671" left untouched for its full
// duration: one expiry notification, record purged, timer entry absent.
func TestScenario_FullExpiry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Countdown: 150 * time.Millisecond})

	first, err := h.controller.Issue(context.Background(), "chat-2", nil)
	require.NoError(t, err)

	second, err := h.controller.Issue(context.Background(), "chat-2", nil)
	require.NoError(t, err)

	// Back-to-back issuance yields consecutive identifiers.
	require.Equal(t, domain.Folio("1670"), first.Folio)
	require.Equal(t, domain.Folio("1671"), second.Folio)

	require.Eventually(t, func() bool {
		return len(h.notifier.byKind(notify.KindExpired)) == 2
	}, 3*time.Second, 10*time.Millisecond)

	h.controller.Shutdown()

	// Exactly one expiry per folio, records gone, nothing tracked.
	require.Len(t, h.notifier.byKind(notify.KindExpired), 2)

	for _, f := range []domain.Folio{"1670", "1671"} {
		_, err := h.store.FindByFolio(context.Background(), f)
		require.ErrorIs(t, err, storage.ErrNotFound)
		require.False(t, h.registry.Tracked(f))
	}
}

// TestConcurrentTriggers_ExactlyOneWins races confirmations, overrides and
// stops on a single folio: one succeeds, the rest observe AlreadyResolved.
func TestConcurrentTriggers_ExactlyOneWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Countdown: 10 * time.Second})

	record, err := h.controller.Issue(context.Background(), "chat-3", nil)
	require.NoError(t, err)

	actor := &domain.Actor{Hostname: "desk-01", Username: "admin"}

	triggers := []func() error{
		func() error { return h.controller.Confirm(context.Background(), record.Folio) },
		func() error { return h.controller.Override(context.Background(), record.Folio, actor) },
		func() error { return h.controller.Stop(context.Background(), record.Folio) },
	}

	const rounds = 8

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)

	for i := 0; i < rounds; i++ {
		for _, trigger := range triggers {
			wg.Add(1)

			go func(trigger func() error) {
				defer wg.Done()

				err := trigger()

				mu.Lock()
				defer mu.Unlock()

				if errors.Is(err, ErrAlreadyResolved) {
					losses++
				} else if err == nil {
					wins++
				}
			}(trigger)
		}
	}

	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, rounds*len(triggers)-1, losses)

	// The stored status matches whichever trigger won.
	stored, err := h.store.FindByFolio(context.Background(), record.Folio)
	require.NoError(t, err)
	require.True(t, stored.Status.Terminal())
	require.False(t, h.registry.Tracked(record.Folio))
}

// TestTrigger_UnknownFolio reports AlreadyResolved for folios that were
// never issued; the caller cannot distinguish the two cases and must not
// treat either as an error.
func TestTrigger_UnknownFolio(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Countdown: time.Second})

	require.ErrorIs(t, h.controller.Confirm(context.Background(), "9999"), ErrAlreadyResolved)
	require.ErrorIs(t, h.controller.Stop(context.Background(), "9999"), ErrAlreadyResolved)
}

// TestResolve_StoreFailureStillCancelsTimer verifies the explicit
// trade-off: a failed status write is surfaced, but the countdown stays
// cancelled rather than being re-armed.
func TestResolve_StoreFailureStillCancelsTimer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Countdown: 10 * time.Second})

	record, err := h.controller.Issue(context.Background(), "chat-4", nil)
	require.NoError(t, err)

	h.store.mu.Lock()
	h.store.failUpdate = errStoreDown
	h.store.mu.Unlock()

	err = h.controller.Confirm(context.Background(), record.Folio)
	require.ErrorIs(t, err, errStoreDown)

	// Out of the countdown for good despite the store failure.
	require.False(t, h.registry.Tracked(record.Folio))
	require.ErrorIs(t, h.controller.Confirm(context.Background(), record.Folio), ErrAlreadyResolved)

	// The terminal notification was still attempted.
	require.Len(t, h.notifier.byKind(notify.KindConfirmed), 1)
}

// TestOverride_RecordsActor persists who performed the override.
func TestOverride_RecordsActor(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	notifier := new(recordingNotifier)
	reg := registry.New()

	alloc, err := allocator.New(context.Background(), store, allocator.Options{
		Prefix:      "1",
		Seed:        670,
		MaxAttempts: 10,
	})
	require.NoError(t, err)

	taskCtx, cancel := context.WithCancel(context.Background())
	c := NewController(taskCtx, store, alloc, reg, notifier, Options{Countdown: 10 * time.Second})

	t.Cleanup(func() {
		cancel()
		c.Shutdown()
	})

	record, err := c.Issue(context.Background(), "chat-5", nil)
	require.NoError(t, err)

	actor := &domain.Actor{Hostname: "desk-01", Username: "j.mendez"}
	require.NoError(t, c.Override(context.Background(), record.Folio, actor))

	stored, err := store.FindByFolio(context.Background(), record.Folio)
	require.NoError(t, err)
	require.Equal(t, domain.StatusOverridden, stored.Status)
	require.Len(t, notifier.byKind(notify.KindOverridden), 1)
}

// TestStatus reports the record plus clamped remaining time while pending.
func TestStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Countdown: time.Minute})

	record, err := h.controller.Issue(context.Background(), "chat-6", nil)
	require.NoError(t, err)

	stored, remaining, err := h.controller.Status(context.Background(), record.Folio)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, stored.Status)
	require.Positive(t, remaining)
	require.LessOrEqual(t, remaining, time.Minute)

	// After confirmation the record remains but no countdown is reported.
	require.NoError(t, h.controller.Confirm(context.Background(), record.Folio))

	stored, remaining, err = h.controller.Status(context.Background(), record.Folio)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, stored.Status)
	require.Equal(t, time.Duration(0), remaining)

	// Unknown folios surface the store's not-found error.
	_, _, err = h.controller.Status(context.Background(), "9999")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestPendingByRequester lists only the requester's live countdowns.
func TestPendingByRequester(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Countdown: time.Minute})

	first, err := h.controller.Issue(context.Background(), "chat-7", nil)
	require.NoError(t, err)

	second, err := h.controller.Issue(context.Background(), "chat-7", nil)
	require.NoError(t, err)

	_, err = h.controller.Issue(context.Background(), "chat-8", nil)
	require.NoError(t, err)

	require.ElementsMatch(t,
		[]domain.Folio{first.Folio, second.Folio},
		h.controller.PendingByRequester("chat-7"))

	require.NoError(t, h.controller.Stop(context.Background(), first.Folio))
	require.ElementsMatch(t,
		[]domain.Folio{second.Folio},
		h.controller.PendingByRequester("chat-7"))
}

// TestShutdown_UnwindsPendingCountdowns verifies that cancelling the task
// context releases Shutdown immediately: countdown tasks must exit at
// their next wake point instead of sleeping out the full duration, and
// cancelled tasks must emit nothing.
func TestShutdown_UnwindsPendingCountdowns(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	notifier := new(recordingNotifier)
	reg := registry.New()

	alloc, err := allocator.New(context.Background(), store, allocator.Options{
		Prefix:      "1",
		Seed:        670,
		MaxAttempts: 10,
	})
	require.NoError(t, err)

	taskCtx, cancel := context.WithCancel(context.Background())
	c := NewController(taskCtx, store, alloc, reg, notifier, Options{Countdown: time.Minute})

	_, err = c.Issue(context.Background(), "chat-9", nil)
	require.NoError(t, err)

	_, err = c.Issue(context.Background(), "chat-9", nil)
	require.NoError(t, err)

	cancel()

	done := make(chan struct{})

	go func() {
		c.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown still waiting on cancelled countdowns")
	}

	require.Empty(t, notifier.byKind(notify.KindExpired))
}
