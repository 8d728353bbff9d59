// Package lifecycle implements the folio state machine. The controller
// issues folios, starts their countdowns, and applies exactly one winning
// transition out of PENDING per folio, no matter how many triggers race.
package lifecycle
