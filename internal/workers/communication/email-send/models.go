package emailsend

import (
	"time"

	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/notify/transport"
)

// Input is an ad-hoc message from an HR user. Body may be plain text or a stored editor document.
type Input struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Output struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	MessageID string    `json:"messageId,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	SentAt    time.Time `json:"sentAt,omitempty"`
}

type ServiceDependencies struct {
	Transport transport.Transport
	Logger    logger.Logger
}
