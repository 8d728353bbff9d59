package allocator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/logger"
	"github.com/permitdesk/folio/internal/storage"
)

var (
	// ErrAllocationExhausted is returned when no free folio was found
	// within the configured attempt bound. Fatal to that issuance attempt.
	ErrAllocationExhausted = errors.New("folio allocation attempts exhausted")

	// errFolioTaken marks a collision inside the retry loop.
	errFolioTaken = errors.New("folio already present in store")
)

// Options configures the allocator.
type Options struct {
	// Prefix is the fixed numeric prefix of every issued folio.
	Prefix string
	// Seed is the first numeric suffix handed out when the store is empty.
	Seed uint64
	// MaxAttempts bounds the collision-retry loop.
	MaxAttempts int
	// RetryInterval is the pause between collision retries. Zero disables
	// backoff entirely; keep it positive when the store is shared.
	RetryInterval time.Duration
}

// Allocator produces unique folio identifiers. The counter is process-wide
// monotonic and never revisits a suffix, even when a collision or a later
// record deletion retires it. The check-then-reserve sequence is not
// atomic against other processes; the deployment guarantees a single
// active process owns issuance. A multi-process deployment would need a
// compare-and-swap primitive in the store instead.
type Allocator struct {
	// store is queried for collision checks.
	store storage.Store
	// opts holds the immutable allocation policy.
	opts Options

	// mu guards counter.
	mu sync.Mutex
	// counter is the next numeric suffix to try.
	counter uint64
}

// New seeds an allocator from the store's highest previously issued folio
// under the configured prefix, falling back to the configured seed when
// the store holds none.
func New(ctx context.Context, store storage.Store, opts Options) (*Allocator, error) {
	a := &Allocator{
		store:   store,
		opts:    opts,
		counter: opts.Seed,
	}

	highest, err := store.MaxFolioUnderPrefix(ctx, opts.Prefix)

	switch {
	case err == nil:
		suffix, parseErr := parseSuffix(highest, opts.Prefix)
		if parseErr != nil {
			return nil, parseErr
		}

		if next := suffix + 1; next > a.counter {
			a.counter = next
		}
	case errors.Is(err, storage.ErrNotFound):
		// Fresh store: keep the configured seed.
	default:
		return nil, fmt.Errorf("seed allocator: %w", err)
	}

	logger.InfoKV(ctx, "Allocator seeded", "prefix", opts.Prefix, "next_suffix", a.counter)

	return a, nil
}

// Allocate returns the next free folio for the requester. The counter is
// incremented unconditionally on every attempt so a collision never
// stalls future attempts. Exceeding the attempt bound fails with
// ErrAllocationExhausted.
func (a *Allocator) Allocate(ctx context.Context, requester domain.Requester) (domain.Folio, error) {
	var allocated domain.Folio

	// BackOff implementations are stateful; always build a fresh one.
	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(a.opts.RetryInterval),
		uint64(a.opts.MaxAttempts-1),
	)

	err := backoff.Retry(func() error {
		candidate := a.nextCandidate()

		_, err := a.store.FindByFolio(ctx, candidate)

		switch {
		case errors.Is(err, storage.ErrNotFound):
			allocated = candidate

			return nil
		case err == nil:
			logger.DebugKV(ctx, "Folio collision, retrying", "candidate", candidate)

			return errFolioTaken // Retryable: try the next suffix.
		default:
			return backoff.Permanent(fmt.Errorf("collision check for %s: %w", candidate, err))
		}
	}, backoff.WithContext(policy, ctx))

	switch {
	case err == nil:
		logger.InfoKV(ctx, "Folio allocated", "folio", allocated, "requester", requester)

		return allocated, nil
	case errors.Is(err, errFolioTaken):
		return "", ErrAllocationExhausted
	default:
		return "", err
	}
}

// nextCandidate forms prefix+counter and advances the counter.
func (a *Allocator) nextCandidate() domain.Folio {
	a.mu.Lock()
	defer a.mu.Unlock()

	candidate := domain.Folio(a.opts.Prefix + strconv.FormatUint(a.counter, 10))
	a.counter++

	return candidate
}

// parseSuffix extracts the numeric suffix from a stored folio.
func parseSuffix(f domain.Folio, prefix string) (uint64, error) {
	raw := strings.TrimPrefix(string(f), prefix)

	suffix, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed folio %q under prefix %q: %w", f, prefix, err)
	}

	return suffix, nil
}
