// Package transport hands rendered messages to an outbound mail service.
package transport

import (
	"context"
	"fmt"

	"hiring-notifications/internal/common/aws"
	"hiring-notifications/internal/common/config"
)

// Message is the send request accepted by every transport and by the mail relay.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Result is the structured send outcome. Success false carries Error.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Transport sends one message. A returned error is a transport-level failure
// (network, timeout, bad response); a Result with Success false is a refused send.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (Result, error)
}

// New builds the transport selected by notifications.transport.
func New(ctx context.Context, cfg *config.Config) (Transport, error) {
	switch cfg.Notifications.Transport {
	case config.TransportRelay, "":
		return NewRelay(cfg.Notifications.Relay.URL, config.GetDuration(cfg.Notifications.Relay.Timeout)), nil
	case config.TransportSMTP:
		return NewSMTP(cfg.Integrations.SMTP), nil
	case config.TransportSES:
		client, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses transport: %w", err)
		}
		return NewSES(client, cfg.Integrations.AWS.SES.FromEmail), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Notifications.Transport)
	}
}
