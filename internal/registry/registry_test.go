package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/permitdesk/folio/internal/domain/folio"
)

// TestTrack_DuplicateRejected enforces at most one live entry per folio.
func TestTrack_DuplicateRejected(t *testing.T) {
	t.Parallel()

	r := New()
	now := time.Now()

	require.NoError(t, r.Track("1770", "chat-1", now, now.Add(time.Hour), func() {}))

	err := r.Track("1770", "chat-1", now, now.Add(time.Hour), func() {})
	require.ErrorIs(t, err, ErrDuplicateTimer)
	require.True(t, r.Tracked("1770"))
}

// TestCancel_InvokesHandleAndIsIdempotent verifies the cancel handle fires
// once and repeated cancels report "not tracked".
func TestCancel_InvokesHandleAndIsIdempotent(t *testing.T) {
	t.Parallel()

	r := New()
	now := time.Now()

	var cancelled atomic.Int32

	require.NoError(t, r.Track("1770", "chat-1", now, now.Add(time.Hour), func() {
		cancelled.Add(1)
	}))

	require.True(t, r.Cancel("1770"))
	require.EqualValues(t, 1, cancelled.Load())
	require.False(t, r.Tracked("1770"))

	// Second cancel is a valid no-op.
	require.False(t, r.Cancel("1770"))
	require.EqualValues(t, 1, cancelled.Load())
}

// TestResolve_ExactlyOneWinner races concurrent resolvers on one folio.
func TestResolve_ExactlyOneWinner(t *testing.T) {
	t.Parallel()

	r := New()
	now := time.Now()
	require.NoError(t, r.Track("1770", "chat-1", now, now.Add(time.Hour), func() {}))

	const racers = 32

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)

	wg.Add(racers)

	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()

			if _, ok := r.Resolve("1770"); ok {
				wins.Add(1)
			}
		}()
	}

	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}

// TestListByRequester returns exactly the requester's pending folios.
func TestListByRequester(t *testing.T) {
	t.Parallel()

	r := New()
	now := time.Now()

	require.NoError(t, r.Track("1770", "chat-1", now, now.Add(time.Hour), func() {}))
	require.NoError(t, r.Track("1771", "chat-1", now, now.Add(time.Hour), func() {}))
	require.NoError(t, r.Track("1772", "chat-2", now, now.Add(time.Hour), func() {}))

	folios := r.ListByRequester("chat-1")
	require.ElementsMatch(t, []domain.Folio{"1770", "1771"}, folios)

	// Resolving removes the folio from the requester index too.
	_, ok := r.Resolve("1770")
	require.True(t, ok)
	require.ElementsMatch(t, []domain.Folio{"1771"}, r.ListByRequester("chat-1"))

	require.Nil(t, r.ListByRequester("chat-3"))
}

// TestRemainingTime is clamped at zero and decreases over elapsed time.
func TestRemainingTime(t *testing.T) {
	t.Parallel()

	r := New()
	now := time.Now()

	// Untracked folio.
	_, ok := r.RemainingTime("1770")
	require.False(t, ok)

	require.NoError(t, r.Track("1770", "chat-1", now, now.Add(100*time.Millisecond), func() {}))

	first, ok := r.RemainingTime("1770")
	require.True(t, ok)
	require.Positive(t, first)

	time.Sleep(20 * time.Millisecond)

	second, ok := r.RemainingTime("1770")
	require.True(t, ok)
	require.Less(t, second, first)

	// Past the deadline the value clamps at zero instead of going negative.
	time.Sleep(100 * time.Millisecond)

	clamped, ok := r.RemainingTime("1770")
	require.True(t, ok)
	require.Equal(t, time.Duration(0), clamped)
}

// TestResolve_ReturnsEntry exposes the owning requester to the winner.
func TestResolve_ReturnsEntry(t *testing.T) {
	t.Parallel()

	r := New()
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, r.Track("1770", "chat-1", now, now.Add(time.Hour), cancel))

	entry, ok := r.Resolve("1770")
	require.True(t, ok)
	require.Equal(t, domain.Folio("1770"), entry.Folio)
	require.Equal(t, domain.Requester("chat-1"), entry.Requester)

	// The stored handle cancelled the task context.
	require.Error(t, ctx.Err())
}
