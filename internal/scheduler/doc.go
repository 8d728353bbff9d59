// Package scheduler runs the per-folio countdown tasks: staged sleeps
// between reminder checkpoints, a registry re-check at every wake point,
// and an expiry proposal at the deadline. Staged sleeping keeps
// cancellation latency no worse than the gap between checkpoints and
// lets the reminder cadence be densest near the deadline.
package scheduler
