package storage

import (
	"context"
	"errors"
	"time"

	domain "github.com/permitdesk/folio/internal/domain/folio"
)

var (
	// ErrNotFound is returned when no record exists for the requested folio.
	ErrNotFound = errors.New("folio record not found")
	// ErrAlreadyExists is returned when inserting a record whose folio is taken.
	ErrAlreadyExists = errors.New("folio record already exists")
)

// StatusUpdate carries a terminal transition to be persisted with a record.
type StatusUpdate struct {
	// Status is the terminal state the folio moved to.
	Status domain.Status
	// ResolvedAt is when the transition was applied.
	ResolvedAt time.Time
	// ResolvedBy names the administrative actor, empty for non-admin triggers.
	ResolvedBy string
}

// Store defines persistence operations for folio records. Implementations
// guarantee per-call atomicity only; the lifecycle core never relies on
// multi-row transactional behavior.
type Store interface {
	// FindByFolio returns the record for the given folio or ErrNotFound.
	FindByFolio(ctx context.Context, f domain.Folio) (*domain.Record, error)
	// Insert persists a freshly issued record.
	Insert(ctx context.Context, record *domain.Record) error
	// UpdateStatus writes a terminal transition for the folio.
	UpdateStatus(ctx context.Context, f domain.Folio, update StatusUpdate) error
	// Delete removes the record outright. Used by the expiry sweep.
	Delete(ctx context.Context, f domain.Folio) error
	// MaxFolioUnderPrefix returns the highest previously issued folio with
	// the given numeric prefix, or ErrNotFound when none exists.
	MaxFolioUnderPrefix(ctx context.Context, prefix string) (domain.Folio, error)
}
