// Package postgres implements the folio record store on top of a pgx
// connection pool. Every operation is a single-row statement keyed by
// folio; the lifecycle core assumes no multi-row transactional guarantees.
package postgres
