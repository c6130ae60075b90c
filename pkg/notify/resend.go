package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// Config holds the Resend email notifier configuration.
type Config struct {
	APIKey     string   `env:"RESEND_API_KEY"`
	SenderName string   `env:"NOTIFY_FROM_NAME" envDefault:"trekpay"`
	Sender     string   `env:"NOTIFY_FROM_EMAIL"`
	Recipients []string `env:"NOTIFY_OPS_EMAILS" envSeparator:","`
}

// Enabled reports whether every setting needed to send email is present.
func (c Config) Enabled() bool {
	return c.APIKey != "" && c.Sender != "" && len(c.Recipients) > 0
}

// emailSender is the part of the Resend client used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Email sends notices to the ops mailbox through Resend.
type Email struct {
	emails emailSender
	from   string
	to     []string
}

// NewEmail creates an email notifier.
func NewEmail(cfg Config) (*Email, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	return newEmail(resend.NewClient(cfg.APIKey).Emails, cfg), nil
}

func newEmail(s emailSender, cfg Config) *Email {
	from := cfg.Sender
	if cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.SenderName, cfg.Sender)
	}
	return &Email{emails: s, from: from, to: cfg.Recipients}
}

// Notify implements Notifier.
func (e *Email) Notify(ctx context.Context, n Notice) error {
	htmlBody, err := renderHTML(n)
	if err != nil {
		return err
	}
	req := &resend.SendEmailRequest{
		From:    e.from,
		To:      e.to,
		Subject: n.Subject(),
		Text:    n.Body(),
		Html:    htmlBody,
		Tags: []resend.Tag{
			{Name: "kind", Value: string(n.Kind)},
			{Name: "job_type", Value: tagValue(n.JobType)},
		},
	}
	if _, err := e.emails.SendWithContext(ctx, req); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

// tagValue keeps Resend tag values within the allowed charset.
func tagValue(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return string(out)
}
