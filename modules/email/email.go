package email

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/resend/resend-go/v3"
)

var (
	ErrInvalidEmail = errors.New("email: invalid message")
	ErrSendFailed   = errors.New("email: send failed")
)

// Message is one outgoing email.
type Message struct {
	// From overrides the configured sender.
	From    string
	To      []string
	CC      []string
	BCC     []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
	Tags    map[string]string
}

func (m *Message) validate() error {
	switch {
	case len(m.To) == 0:
		return fmt.Errorf("%w: no recipients", ErrInvalidEmail)
	case strings.TrimSpace(m.Subject) == "":
		return fmt.Errorf("%w: empty subject", ErrInvalidEmail)
	case m.HTML == "" && m.Text == "":
		return fmt.Errorf("%w: empty body", ErrInvalidEmail)
	}
	return nil
}

// Sender is the service other modules use.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Address formats a display name and address as "Name <address>".
func Address(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

type resendSender struct {
	client *resend.Client
	from   string
}

func newResendSender(o *Options) (*resendSender, error) {
	client := resend.NewClient(o.APIKey)
	if o.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(o.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("email: parse base URL: %w", err)
		}
		client.BaseURL = u
	}
	return &resendSender{client: client, from: Address(o.FromName, o.FromEmail)}, nil
}

func (s *resendSender) Send(ctx context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	req := &resend.SendEmailRequest{
		From:    cmp.Or(msg.From, s.from),
		To:      msg.To,
		Cc:      msg.CC,
		Bcc:     msg.BCC,
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Headers: msg.Headers,
	}
	for _, name := range slices.Sorted(maps.Keys(msg.Tags)) {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: msg.Tags[name]})
	}
	if _, err := s.client.Emails.SendWithContext(ctx, req); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

// logSender writes messages to the log instead of delivering them.
type logSender struct {
	logger *slog.Logger
	from   string
}

func (s *logSender) Send(ctx context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Email not delivered; log provider",
		"from", cmp.Or(msg.From, s.from), "to", msg.To, "subject", msg.Subject)
	return nil
}
