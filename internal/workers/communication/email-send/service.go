package emailsend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "hiring-notifications/internal/common/errors"
	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/notify/richtext"
	"hiring-notifications/internal/notify/sanitize"
	"hiring-notifications/internal/notify/transport"
)

type Service struct {
	transport transport.Transport
	logger    logger.Logger
}

func NewService(deps ServiceDependencies) *Service {
	return &Service{
		transport: deps.Transport,
		logger:    deps.Logger,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	to := strings.TrimSpace(input.To)
	if !isValidEmail(to) {
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("invalid 'to' email address: %s", input.To))
	}

	body := sanitize.Text(richtext.Flatten(input.Body))
	msg := transport.Message{
		To:      to,
		Subject: sanitize.Text(input.Subject),
		Text:    body,
		HTML:    body,
	}

	s.logger.Info("Executing email send", map[string]interface{}{
		"to":        msg.To,
		"subject":   msg.Subject,
		"transport": s.transport.Name(),
	})

	res, err := s.transport.Send(ctx, msg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTransportTimeoutError(s.transport.Name(), err)
		}
		return nil, apperrors.NewTransportFailedError(s.transport.Name(), err.Error())
	}
	if !res.Success {
		return nil, apperrors.NewTransportFailedError(s.transport.Name(), res.Error)
	}

	s.logger.Info("Email sent successfully", map[string]interface{}{
		"to":        msg.To,
		"messageId": res.MessageID,
	})

	return &Output{
		Success:   true,
		Message:   "Email sent successfully",
		MessageID: res.MessageID,
		Provider:  s.transport.Name(),
		SentAt:    time.Now().UTC(),
	}, nil
}

func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if parts[0] == "" || parts[1] == "" {
		return false
	}
	return strings.Contains(parts[1], ".") && !strings.ContainsAny(email, " \t\r\n")
}
