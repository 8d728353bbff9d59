// Package allocator issues unique folio identifiers: a fixed numeric
// prefix plus a process-wide monotonic suffix, verified against the
// record store before being handed out. The retry bound and the pause
// between collision retries are configuration, not constants.
package allocator
