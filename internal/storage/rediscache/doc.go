// Package rediscache decorates a folio record store with a read-through
// Redis cache. The status page polls records far more often than they
// change, so reads are served from Redis with a short TTL while every
// write goes straight to the inner store and invalidates the entry.
package rediscache
