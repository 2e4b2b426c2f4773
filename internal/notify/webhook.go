package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
)

// DefaultWebhookTitle is the embed title of webhook posts.
const DefaultWebhookTitle = "New Notification!"

// embedColor is green.
const embedColor = 0x00ff00

type webhookEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type webhookBody struct {
	Embeds []webhookEmbed `json:"embeds"`
}

// WebhookPoster posts alerts to a Discord-style chat webhook.
type WebhookPoster struct {
	client *resty.Client
	url    string
}

// NewWebhookPoster creates a poster from the webhook configuration.
func NewWebhookPoster(cfg config.WebhookConfig) (*WebhookPoster, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: webhook url is required", ErrNotConfigured)
	}
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(time.Duration(cfg.Timeout) * time.Second)
	}
	return &WebhookPoster{client: client, url: cfg.URL}, nil
}

// PostWebhook posts a single embed. Any non-2xx response is an error.
func (w *WebhookPoster) PostWebhook(ctx context.Context, title, message string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookBody{Embeds: []webhookEmbed{{
			Title:       title,
			Description: message,
			Color:       embedColor,
		}}}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: %s", ErrWebhookStatus, resp.Status())
	}
	return nil
}
