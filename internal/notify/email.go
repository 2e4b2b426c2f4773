package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
)

// DefaultSubject is the subject of alert emails.
const DefaultSubject = "Smartpot notification"

// SMTPSender sends alert emails through an SMTP relay.
type SMTPSender struct {
	client *mail.Client
	from   string
}

// NewSMTPSender creates a sender from the email configuration. The
// connection is opened per batch, not here.
func NewSMTPSender(cfg config.EmailConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: smtp host and from address are required", ErrNotConfigured)
	}

	var opts []mail.Option
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// SendEmail sends one message per address over a single connection.
// Invalid addresses are skipped and reported in the returned error.
func (s *SMTPSender) SendEmail(ctx context.Context, to []string, subject, body string) error {
	msgs, err := buildMessages(s.from, to, subject, body)
	if len(msgs) == 0 {
		return err
	}
	if sendErr := s.client.DialAndSendWithContext(ctx, msgs...); sendErr != nil {
		return errors.Join(fmt.Errorf("sending alert email: %w", sendErr), err)
	}
	return err
}

func buildMessages(from string, to []string, subject, body string) ([]*mail.Msg, error) {
	var errs []error
	msgs := make([]*mail.Msg, 0, len(to))
	for _, addr := range to {
		m := mail.NewMsg()
		if err := m.From(from); err != nil {
			return nil, fmt.Errorf("invalid from address %q: %w", from, err)
		}
		if err := m.To(addr); err != nil {
			errs = append(errs, fmt.Errorf("invalid recipient %q: %w", addr, err))
			continue
		}
		m.Subject(subject)
		m.SetBodyString(mail.TypeTextPlain, body)
		msgs = append(msgs, m)
	}
	return msgs, errors.Join(errs...)
}
