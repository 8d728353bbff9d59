// Package registry tracks the in-memory timer entries of pending folios.
// It is the single serialization point of the lifecycle core: the
// atomic Resolve operation decides which of the racing triggers
// (confirmation, override, stop, expiry) wins a folio.
package registry
