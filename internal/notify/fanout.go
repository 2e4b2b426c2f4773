package notify

import (
	"context"
	"encoding/json"
	"sync"
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LiveSender delivers a payload to a user's live connection.
// *live.Registry satisfies it.
type LiveSender interface {
	SendToUser(userID string, payload []byte) bool
}

// EmailSender sends one plain-text message to each address.
type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// WebhookSender posts a message to a chat webhook.
type WebhookSender interface {
	PostWebhook(ctx context.Context, title, message string) error
}

// Publisher publishes a message on a broker topic. *mqtt.Client
// satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recipient is a user who should hear about an event.
type Recipient struct {
	UserID string
	Email  string
}

// Alert is the off-band part of a notification.
type Alert struct {
	FlowerID   string `json:"flower_id"`
	FlowerName string `json:"flower_name"`
	Message    string `json:"message"`
}

// Fanout delivers events to live connections and, for alerts, to the
// email and webhook channels.
type Fanout struct {
	live       LiveSender
	dispatcher *Dispatcher

	mu      sync.RWMutex
	email   EmailSender
	subject string
	webhook WebhookSender
	title   string

	publisher Publisher
	topicFor  func(flowerID string) string
	qos       byte
}

// NewFanout creates a fanout over the live registry. Off-band channels are
// disabled until SetEmail or SetWebhook is called.
func NewFanout(live LiveSender, dispatcher *Dispatcher) *Fanout {
	return &Fanout{
		live:       live,
		dispatcher: dispatcher,
		subject:    DefaultSubject,
		title:      DefaultWebhookTitle,
	}
}

// SetEmail enables the email channel.
func (f *Fanout) SetEmail(sender EmailSender, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = sender
	if subject != "" {
		f.subject = subject
	}
}

// SetWebhook enables the chat webhook channel.
func (f *Fanout) SetWebhook(sender WebhookSender, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhook = sender
	if title != "" {
		f.title = title
	}
}

// SetPublisher enables the broker channel. Each alert is published once
// on topicFor(alert.FlowerID).
func (f *Fanout) SetPublisher(publisher Publisher, topicFor func(flowerID string) string, qos byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publisher = publisher
	f.topicFor = topicFor
	f.qos = qos
}

// Notify pushes payload to each recipient's live connection and returns
// how many were reached. When alert is non-nil one email batch and one
// webhook post are scheduled on the dispatcher; Notify does not wait for
// them. An alert is also published to the broker when SetPublisher was
// called.
func (f *Fanout) Notify(ctx context.Context, recipients []Recipient, payload []byte, alert *Alert) int {
	delivered := 0
	if payload != nil && f.live != nil {
		for _, r := range recipients {
			if f.live.SendToUser(r.UserID, payload) {
				delivered++
			}
		}
	}

	if alert == nil {
		return delivered
	}

	f.mu.RLock()
	email, subject := f.email, f.subject
	webhook, title := f.webhook, f.title
	publisher, topicFor, qos := f.publisher, f.topicFor, f.qos
	f.mu.RUnlock()

	if email != nil {
		var to []string
		for _, r := range recipients {
			if r.Email != "" {
				to = append(to, r.Email)
			}
		}
		if len(to) > 0 {
			message := alert.Message
			f.dispatcher.Go("email", func(ctx context.Context) error {
				return email.SendEmail(ctx, to, subject, message)
			})
		}
	}

	if webhook != nil {
		message := alert.Message
		f.dispatcher.Go("webhook", func(ctx context.Context) error {
			return webhook.PostWebhook(ctx, title, message)
		})
	}

	if publisher != nil && topicFor != nil && alert.FlowerID != "" {
		topic := topicFor(alert.FlowerID)
		body, err := json.Marshal(alert)
		if err == nil {
			f.dispatcher.Go("mqtt", func(context.Context) error {
				return publisher.Publish(topic, body, qos, false)
			})
		}
	}
	return delivered
}
