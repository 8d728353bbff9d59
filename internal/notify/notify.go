package notify

import (
	"context"
	"fmt"
	"time"

	domain "github.com/permitdesk/folio/internal/domain/folio"
)

// Kind distinguishes the notification classes the lifecycle core emits.
type Kind string

// Notification kinds. Reminder fires at countdown checkpoints; the rest
// accompany terminal transitions.
const (
	KindReminder   Kind = "reminder"
	KindConfirmed  Kind = "confirmed"
	KindOverridden Kind = "overridden"
	KindStopped    Kind = "stopped"
	KindExpired    Kind = "expired"
)

// Message is delivered to a folio's owning requester.
type Message struct {
	// Folio identifies the transaction the message is about.
	Folio domain.Folio
	// Kind classifies the message.
	Kind Kind
	// Remaining is the time left before the deadline. Reminder only.
	Remaining time.Duration
	// Deadline is the folio's payment deadline.
	Deadline time.Time
}

// Text renders the human-readable body sent to the requester.
func (m Message) Text() string {
	switch m.Kind {
	case KindReminder:
		return fmt.Sprintf(
			"Folio %s: %s left to confirm payment (deadline %s).",
			m.Folio, m.Remaining, m.Deadline.Format(time.RFC3339))
	case KindConfirmed:
		return fmt.Sprintf("Folio %s: payment confirmed. Your document is valid.", m.Folio)
	case KindOverridden:
		return fmt.Sprintf("Folio %s: approved by an administrator.", m.Folio)
	case KindStopped:
		return fmt.Sprintf("Folio %s: processing stopped at your request.", m.Folio)
	case KindExpired:
		return fmt.Sprintf("Folio %s: payment deadline passed, the folio has been revoked.", m.Folio)
	default:
		return fmt.Sprintf("Folio %s: %s", m.Folio, m.Kind)
	}
}

// Notifier delivers messages to requesters. Fire-and-forget from the
// core's point of view: failures are logged by callers, never retried.
type Notifier interface {
	Notify(ctx context.Context, requester domain.Requester, message Message) error
}
