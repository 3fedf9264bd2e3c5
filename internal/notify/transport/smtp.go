package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"hiring-notifications/internal/common/config"

	mail "github.com/go-mail/mail"
	"github.com/google/uuid"
)

// Sender is satisfied by *mail.Dialer.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTP sends through an SMTP server. Port 465 uses implicit TLS, other ports STARTTLS when UseTLS is set.
type SMTP struct {
	from     string
	fromName string
	sender   Sender
}

func NewSMTP(cfg config.SMTPConfig) *SMTP {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	d.Timeout = 10 * time.Second
	if cfg.Port == 465 {
		d.SSL = true
	} else if cfg.UseTLS {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return NewSMTPWithSender(cfg.DefaultFrom, cfg.FromName, d)
}

func NewSMTPWithSender(from, fromName string, sender Sender) *SMTP {
	return &SMTP{from: from, fromName: fromName, sender: sender}
}

func (s *SMTP) Name() string { return "smtp" }

func (s *SMTP) Send(ctx context.Context, msg Message) (Result, error) {
	m, messageID := s.build(msg)

	done := make(chan error, 1)
	go func() { done <- s.sender.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("smtp send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		return Result{Success: true, MessageID: messageID}, nil
	}
}

func (s *SMTP) build(msg Message) (*mail.Message, string) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(s.from))

	m := mail.NewMessage()
	if s.fromName != "" {
		m.SetAddressHeader("From", s.from, s.fromName)
	} else {
		m.SetHeader("From", s.from)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m, messageID
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
