// Package status changes applicant statuses and queues the notification for each real change.
package status

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "hiring-notifications/internal/common/errors"
	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/common/metrics"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/dispatcher"
)

type Store interface {
	UpdateStatus(ctx context.Context, orgID, applicantID, status string) (*models.StatusChange, error)
	GetApplicant(ctx context.Context, orgID, applicantID string) (*models.Applicant, error)
	GetApplicantByToken(ctx context.Context, token string) (*models.Applicant, error)
}

// Enqueuer is satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(req dispatcher.Request) error
}

// MessagePublisher is satisfied by *camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey string, variables map[string]interface{}, ttl time.Duration) error
}

// StatusChangedMessage is published to the workflow engine for every real change,
// correlated by applicant id.
const StatusChangedMessage = "applicant-status-changed"

const messageTTL = time.Hour

type Service struct {
	store     Store
	queue     Enqueuer
	publisher MessagePublisher
	statuses  map[string]struct{}
	logger    logger.Logger
}

// Result is a status write plus whether a notification was queued for it.
type Result struct {
	models.StatusChange
	NotificationQueued bool `json:"notificationQueued"`
}

func NewService(store Store, queue Enqueuer, statuses []string, log logger.Logger) *Service {
	known := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		known[normalize(s)] = struct{}{}
	}
	return &Service{
		store:    store,
		queue:    queue,
		statuses: known,
		logger:   logger.Component(log, "status"),
	}
}

// WithPublisher makes ChangeStatus publish StatusChangedMessage after each real change.
func (s *Service) WithPublisher(p MessagePublisher) *Service {
	s.publisher = p
	return s
}

// ChangeStatus writes the status and, only when it differs from the stored one, queues
// a dispatch. A queueing failure is logged; the status change still stands.
func (s *Service) ChangeStatus(ctx context.Context, orgID, applicantID, status string) (*Result, error) {
	status, err := s.validate(status)
	if err != nil {
		return nil, err
	}

	change, err := s.store.UpdateStatus(ctx, orgID, applicantID, status)
	if err != nil {
		return nil, err
	}
	metrics.ApplicantStatusChanges.WithLabelValues(strconv.FormatBool(change.Changed)).Inc()

	res := &Result{StatusChange: *change}
	if !change.Changed {
		s.logger.Debug("Status unchanged, no notification", map[string]interface{}{
			"applicantId": applicantID,
			"status":      status,
		})
		return res, nil
	}

	res.NotificationQueued = s.enqueue(dispatcher.Request{ApplicantID: applicantID, OrgID: orgID, Status: status})
	s.publish(ctx, orgID, change)
	return res, nil
}

// Notify queues a dispatch for the given status without touching the stored status.
// The applicant must belong to orgID.
func (s *Service) Notify(ctx context.Context, orgID, applicantID, status string) error {
	status, err := s.validate(status)
	if err != nil {
		return err
	}
	if s.queue == nil {
		return fmt.Errorf("notification queue is not configured")
	}
	if _, err := s.store.GetApplicant(ctx, orgID, applicantID); err != nil {
		return err
	}
	return s.queue.Enqueue(dispatcher.Request{ApplicantID: applicantID, OrgID: orgID, Status: status})
}

// Lookup resolves a public status token.
func (s *Service) Lookup(ctx context.Context, token string) (*models.StatusLookup, error) {
	a, err := s.store.GetApplicantByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	return &models.StatusLookup{Token: a.Token, Status: a.Status, FormID: a.FormID}, nil
}

// Known reports whether status is part of the configured lifecycle.
func (s *Service) Known(status string) bool {
	_, ok := s.statuses[normalize(status)]
	return ok
}

func (s *Service) validate(status string) (string, error) {
	status = normalize(status)
	if status == "" || !s.Known(status) {
		return "", apperrors.NewInvalidStatusError(status)
	}
	return status, nil
}

func (s *Service) enqueue(req dispatcher.Request) bool {
	if s.queue == nil {
		return false
	}
	if err := s.queue.Enqueue(req); err != nil {
		s.logger.Error("Could not queue status notification", map[string]interface{}{
			"applicantId": req.ApplicantID,
			"orgId":       req.OrgID,
			"status":      req.Status,
			"error":       err.Error(),
		})
		return false
	}
	return true
}

func (s *Service) publish(ctx context.Context, orgID string, change *models.StatusChange) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishMessage(ctx, StatusChangedMessage, change.ApplicantID, map[string]interface{}{
		"applicantId":    change.ApplicantID,
		"orgId":          orgID,
		"formId":         change.FormID,
		"status":         change.Status,
		"previousStatus": change.PreviousStatus,
	}, messageTTL)
	if err != nil {
		s.logger.Warn("Could not publish status change", map[string]interface{}{
			"applicantId": change.ApplicantID,
			"status":      change.Status,
			"error":       err.Error(),
		})
	}
}

func normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
