// Package notify defines the outbound notification port of the lifecycle
// core and its implementations: a Telegram Bot API sender and a log-only
// fallback. Deliveries are fire-and-forget; the core logs failures and
// never retries.
package notify
