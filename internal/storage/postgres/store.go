package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/storage"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// schema creates the folio record table when it does not exist yet.
const schema = `
CREATE TABLE IF NOT EXISTS folio_records (
	folio       TEXT PRIMARY KEY,
	requester   TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	issued_at   TIMESTAMPTZ NOT NULL,
	deadline    TIMESTAMPTZ NOT NULL,
	payload     JSONB,
	resolved_at TIMESTAMPTZ,
	resolved_by TEXT
)`

// Store persists folio records in Postgres. All operations are single-row
// statements keyed by folio; no transaction spans more than one call.
type Store struct {
	// pool is the shared pgx connection pool.
	pool *pgxpool.Pool
}

// Connect opens a pgx pool for the given connection string and pings it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// NewStore wraps the provided pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the folio_records table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	return nil
}

// FindByFolio returns the record for the given folio or storage.ErrNotFound.
func (s *Store) FindByFolio(ctx context.Context, f domain.Folio) (*domain.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT folio, requester, status, issued_at, deadline, payload
		 FROM folio_records WHERE folio = $1`, string(f))

	var record domain.Record
	err := row.Scan(
		&record.Folio,
		&record.Requester,
		&record.Status,
		&record.IssuedAt,
		&record.Deadline,
		&record.Payload,
	)

	switch {
	case err == nil:
		return &record, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, storage.ErrNotFound
	default:
		return nil, fmt.Errorf("find folio %s: %w", f, err)
	}
}

// Insert persists a freshly issued record.
func (s *Store) Insert(ctx context.Context, record *domain.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO folio_records (folio, requester, status, issued_at, deadline, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(record.Folio),
		string(record.Requester),
		string(record.Status),
		record.IssuedAt,
		record.Deadline,
		record.Payload,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrAlreadyExists
		}

		return fmt.Errorf("insert folio %s: %w", record.Folio, err)
	}

	return nil
}

// UpdateStatus writes a terminal transition for the folio.
func (s *Store) UpdateStatus(ctx context.Context, f domain.Folio, update storage.StatusUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE folio_records
		 SET status = $2, resolved_at = $3, resolved_by = NULLIF($4, '')
		 WHERE folio = $1`,
		string(f),
		string(update.Status),
		update.ResolvedAt,
		update.ResolvedBy,
	)
	if err != nil {
		return fmt.Errorf("update folio %s: %w", f, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// Delete removes the record outright.
func (s *Store) Delete(ctx context.Context, f domain.Folio) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM folio_records WHERE folio = $1`, string(f))
	if err != nil {
		return fmt.Errorf("delete folio %s: %w", f, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// MaxFolioUnderPrefix returns the highest issued folio with the given
// numeric prefix. Folios share the prefix and carry numeric suffixes, so
// ordering by length first yields numeric order.
func (s *Store) MaxFolioUnderPrefix(ctx context.Context, prefix string) (domain.Folio, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT folio FROM folio_records
		 WHERE folio LIKE $1 || '%'
		 ORDER BY length(folio) DESC, folio DESC
		 LIMIT 1`, prefix)

	var f string
	err := row.Scan(&f)

	switch {
	case err == nil:
		return domain.Folio(f), nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", storage.ErrNotFound
	default:
		return "", fmt.Errorf("max folio under prefix %s: %w", prefix, err)
	}
}
