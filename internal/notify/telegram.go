package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domain "github.com/permitdesk/folio/internal/domain/folio"
)

// DefaultTelegramAPIBase is the public Bot API endpoint.
const DefaultTelegramAPIBase = "https://api.telegram.org"

// TelegramNotifier delivers messages through the Telegram Bot API.
// Requesters are Telegram chat identifiers.
type TelegramNotifier struct {
	// apiBase is the Bot API endpoint, overridable for tests.
	apiBase string
	// token authenticates the bot.
	token string
	// client performs the outbound HTTP calls.
	client *http.Client
}

// NewTelegramNotifier builds a notifier for the given bot token.
// An empty apiBase falls back to the public endpoint.
func NewTelegramNotifier(token, apiBase string, timeout time.Duration) *TelegramNotifier {
	if apiBase == "" {
		apiBase = DefaultTelegramAPIBase
	}

	return &TelegramNotifier{
		apiBase: apiBase,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// sendMessageRequest is the Bot API sendMessage payload.
type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// sendMessageResponse is the subset of the Bot API reply we inspect.
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify posts the rendered message to the requester's chat.
func (n *TelegramNotifier) Notify(ctx context.Context, requester domain.Requester, message Message) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID: string(requester),
		Text:   message.Text(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	var reply sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !reply.OK {
		return fmt.Errorf("telegram rejected message: %s", reply.Description)
	}

	return nil
}
