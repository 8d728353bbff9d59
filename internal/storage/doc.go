// Package storage defines the persistence contract for folio records.
//
// The Postgres implementation lives in the postgres subpackage; the
// rediscache subpackage decorates any Store with a read-through cache.
package storage
