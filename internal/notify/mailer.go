package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/wneessen/go-mail"

	"agency-backend/internal/config"
)

type Message struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP delivers messages through one configured relay.
type SMTP struct {
	client *mail.Client
	from   string
}

func NewSMTP(cfg config.SMTPConfig) (*SMTP, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
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
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTP{client: client, from: cfg.From}, nil
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return fmt.Errorf("mail reply-to: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		log.Printf("[MAIL] [ERROR] send %q to %s failed: %v", msg.Subject, msg.To, err)
		return fmt.Errorf("mail send: %w", err)
	}
	log.Printf("[MAIL] [INFO] sent %q to %s", msg.Subject, msg.To)
	return nil
}

// LogOnly stands in when no SMTP host is configured.
type LogOnly struct{}

func (LogOnly) Send(_ context.Context, msg Message) error {
	log.Printf("[MAIL] [WARN] smtp not configured, dropping %q to %s", msg.Subject, msg.To)
	return nil
}
