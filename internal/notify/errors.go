package notify

import "errors"

var (
	// ErrNotConfigured is returned when a channel is enabled without the
	// settings it needs.
	ErrNotConfigured = errors.New("notify: channel not configured")

	// ErrWebhookStatus is returned for a non-2xx webhook response.
	ErrWebhookStatus = errors.New("notify: webhook rejected")
)
