package allocator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/storage"
)

// memoryStore is a minimal in-memory Store implementation for tests.
type memoryStore struct {
	// mu guards records.
	mu sync.Mutex
	// records maps folios to their stored records.
	records map[domain.Folio]*domain.Record
	// findCalls counts collision-check round-trips.
	findCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[domain.Folio]*domain.Record)}
}

func (m *memoryStore) FindByFolio(_ context.Context, f domain.Folio) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findCalls++

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

// MaxFolioUnderPrefix orders candidates by length, then lexicographically,
// the way the SQL implementation does. Malformed rows are not filtered
// here; rejecting them is the allocator's job.
func (m *memoryStore) MaxFolioUnderPrefix(_ context.Context, prefix string) (domain.Folio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best domain.Folio

	for f := range m.records {
		if !strings.HasPrefix(string(f), prefix) {
			continue
		}

		if best == "" || len(f) > len(best) || (len(f) == len(best) && f > best) {
			best = f
		}
	}

	if best == "" {
		return "", storage.ErrNotFound
	}

	return best, nil
}

// seed injects a pending record directly into the stub.
func (m *memoryStore) seed(f domain.Folio) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[f] = &domain.Record{Folio: f, Status: domain.StatusPending}
}

func testOptions() Options {
	return Options{
		Prefix:      "1",
		Seed:        769,
		MaxAttempts: 10,
	}
}

// TestNew_SeedsFromStoreMax continues past the highest stored folio.
func TestNew_SeedsFromStoreMax(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.seed("1780")

	a, err := New(context.Background(), store, testOptions())
	require.NoError(t, err)

	f, err := a.Allocate(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, domain.Folio("1781"), f)
}

// TestNew_FreshStoreUsesConfiguredSeed starts from the configured suffix.
func TestNew_FreshStoreUsesConfiguredSeed(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), newMemoryStore(), testOptions())
	require.NoError(t, err)

	f, err := a.Allocate(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, domain.Folio("1769"), f)
}

// TestNew_MalformedStoredFolio rejects rows that cannot seed the counter.
func TestNew_MalformedStoredFolio(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.seed("1ABC")

	_, err := New(context.Background(), store, testOptions())
	require.Error(t, err)
}

// TestAllocate_BackToBackConsecutive covers two issuances with no
// intervening store writes: distinct, consecutively numbered folios.
func TestAllocate_BackToBackConsecutive(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), newMemoryStore(), testOptions())
	require.NoError(t, err)

	first, err := a.Allocate(context.Background(), "chat-1")
	require.NoError(t, err)

	second, err := a.Allocate(context.Background(), "chat-1")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Equal(t, domain.Folio("1769"), first)
	require.Equal(t, domain.Folio("1770"), second)
}

// TestAllocate_SkipsCollisions walks past occupied suffixes within the bound.
func TestAllocate_SkipsCollisions(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()

	a, err := New(context.Background(), store, testOptions())
	require.NoError(t, err)

	// Occupy the next five suffixes after seeding.
	for _, f := range []domain.Folio{"1769", "1770", "1771", "1772", "1773"} {
		store.seed(f)
	}

	f, err := a.Allocate(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, domain.Folio("1774"), f)

	// One round-trip per attempt: five collisions plus the winner.
	require.Equal(t, 6, store.findCalls)
}

// TestAllocate_Exhausted fails once the attempt bound is exceeded.
func TestAllocate_Exhausted(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()

	opts := testOptions()
	opts.MaxAttempts = 3

	a, err := New(context.Background(), store, opts)
	require.NoError(t, err)

	for _, f := range []domain.Folio{"1769", "1770", "1771", "1772"} {
		store.seed(f)
	}

	_, err = a.Allocate(context.Background(), "chat-1")
	require.ErrorIs(t, err, ErrAllocationExhausted)
}

// TestAllocate_NeverReturnsStoredFolio allocates repeatedly while inserting
// each result, asserting uniqueness against everything already stored.
func TestAllocate_NeverReturnsStoredFolio(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()

	a, err := New(context.Background(), store, testOptions())
	require.NoError(t, err)

	seen := make(map[domain.Folio]struct{})

	for i := 0; i < 50; i++ {
		f, err := a.Allocate(context.Background(), "chat-1")
		require.NoError(t, err)

		_, dup := seen[f]
		require.False(t, dup, "folio %s issued twice", f)

		seen[f] = struct{}{}
		store.seed(f)
	}
}
