package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/permitdesk/folio/internal/config"
	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/logger"
)

// DefaultServerURL is used when neither the flag nor the settings file
// provides a server address.
const DefaultServerURL = "http://localhost:8080"

// Options controls a single folio-admin invocation.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerURL provides an optional folio server base URL override.
	ServerURL string
	// Folio identifies the record the action applies to.
	Folio string
}

// client issues authenticated requests against the folio HTTP API.
type client struct {
	httpClient *http.Client
	baseURL    string
	adminToken string
}

// newClient loads the settings and builds the API client. An explicit
// ServerURL override takes precedence over the settings file.
func newClient(opts *Options) (*client, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	baseURL := DefaultServerURL
	if cfg.ServerURL != "" {
		baseURL = cfg.ServerURL
	}

	if opts.ServerURL != "" {
		baseURL = opts.ServerURL
	}

	return &client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		adminToken: cfg.AdminToken,
	}, nil
}

// triggerResult mirrors the server's trigger response body.
type triggerResult struct {
	Folio   string `json:"folio"`
	Outcome string `json:"outcome"`
}

// statusResult mirrors the server's status response body.
type statusResult struct {
	Folio            string    `json:"folio"`
	Requester        string    `json:"requester"`
	Status           string    `json:"status"`
	IssuedAt         time.Time `json:"issued_at"`
	Deadline         time.Time `json:"deadline"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// Confirm marks the folio as paid and cancels its countdown.
func Confirm(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "folio-admin")

	c, err := newClient(opts)
	if err != nil {
		return err
	}

	return c.trigger(ctx, opts.Folio, "confirm", nil)
}

// Stop cancels the folio countdown without marking it paid.
func Stop(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "folio-admin")

	c, err := newClient(opts)
	if err != nil {
		return err
	}

	return c.trigger(ctx, opts.Folio, "stop", nil)
}

// Override resolves the folio administratively, recording the local
// host and user as the acting administrator.
func Override(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "folio-admin")

	c, err := newClient(opts)
	if err != nil {
		return err
	}

	actor, err := domain.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	headers := map[string]string{
		"X-Admin-Token": c.adminToken,
		"X-Admin-Host":  actor.Hostname,
		"X-Admin-Actor": actor.Username,
	}

	return c.trigger(ctx, opts.Folio, "override", headers)
}

// Status fetches and logs the folio's current record.
func Status(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "folio-admin")

	c, err := newClient(opts)
	if err != nil {
		return err
	}

	body, err := c.do(ctx, http.MethodGet, "/api/v1/folios/"+opts.Folio, nil)
	if err != nil {
		return err
	}

	var result statusResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}

	logger.InfoKV(ctx, "Folio status",
		"folio", result.Folio,
		"requester", result.Requester,
		"status", result.Status,
		"deadline", result.Deadline.Format(time.RFC3339),
		"remaining_seconds", result.RemainingSeconds)

	return nil
}

// trigger posts the named trigger action and logs the outcome.
func (c *client) trigger(ctx context.Context, f, action string, headers map[string]string) error {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/folios/"+f+"/"+action, headers)
	if err != nil {
		return err
	}

	var result triggerResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode trigger response: %w", err)
	}

	logger.InfoKV(ctx, "Trigger applied", "folio", result.Folio, "outcome", result.Outcome)

	return nil
}

// do performs a single API request and returns the response body.
// Non-2xx responses are converted to errors carrying the server's
// error message.
func (c *client) do(ctx context.Context, method, path string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call folio server: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}

		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("folio server: %s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}

		return nil, fmt.Errorf("folio server returned HTTP %d", resp.StatusCode)
	}

	return body, nil
}
