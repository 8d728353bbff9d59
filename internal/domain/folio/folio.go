package folio

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"time"
)

// Folio is the unique textual transaction identifier under lifecycle
// management: a fixed numeric prefix followed by a monotonically
// increasing numeric suffix. Immutable once issued and never reissued.
type Folio string

// Requester identifies the party a folio was issued for and who receives
// reminder and terminal notifications.
type Requester string

// Status is the lifecycle state persisted with every folio record.
type Status string

// Lifecycle states. PENDING is the only non-terminal state; every other
// status is final.
const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusOverridden Status = "OVERRIDDEN"
	StatusStopped    Status = "STOPPED"
	StatusExpired    Status = "EXPIRED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusOverridden, StatusStopped, StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is final. A folio in a terminal state can
// never leave it.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// CanTransitionTo reports whether the state machine allows moving from s
// to next. Only PENDING has outgoing edges, one per trigger.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.Terminal()
}

// Record is the persisted view of a folio. Payload is opaque data
// supplied at issuance and never interpreted by the lifecycle core.
type Record struct {
	// Folio is the issued identifier this record belongs to.
	Folio Folio
	// Requester owns the folio and receives its notifications.
	Requester Requester
	// Status is the current lifecycle state.
	Status Status
	// IssuedAt is when the folio was allocated.
	IssuedAt time.Time
	// Deadline is the instant the countdown expires.
	Deadline time.Time
	// Payload carries caller-supplied data verbatim.
	Payload json.RawMessage
}

// Clone returns a copy of the record to avoid leaking internal references.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r
	if r.Payload != nil {
		cloned.Payload = append(json.RawMessage(nil), r.Payload...)
	}

	return &cloned
}

// Actor identifies who performed an administrative action.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string
	// Username is the system user who triggered the action.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// DetectActor gathers host and user information for audit trail.
func DetectActor() (*Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
