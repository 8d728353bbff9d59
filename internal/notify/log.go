package notify

import (
	"context"

	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/logger"
)

// LogNotifier writes notifications to the service log. Used for local
// runs when no Telegram token is configured.
type LogNotifier struct{}

// NewLogNotifier returns a notifier that only logs.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the message instead of delivering it.
func (n *LogNotifier) Notify(ctx context.Context, requester domain.Requester, message Message) error {
	logger.InfoKV(ctx, "Notification",
		"requester", requester,
		"folio", message.Folio,
		"kind", message.Kind,
		"text", message.Text(),
	)

	return nil
}
