// Package dispatcher sends the status notification for one applicant status change.
//
// Dispatch is the error boundary of the notification engine: lookups, rendering and
// sending all happen behind it, and every outcome (sent, skipped, failed) is returned
// as a models.Notification instead of an error.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "hiring-notifications/internal/common/errors"
	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/common/metrics"
	"hiring-notifications/internal/common/observability"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/placeholder"
	"hiring-notifications/internal/notify/richtext"
	"hiring-notifications/internal/notify/sanitize"
	"hiring-notifications/internal/notify/selector"
	"hiring-notifications/internal/notify/store"
	"hiring-notifications/internal/notify/transport"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout = 5 * time.Second
	recordTimeout  = 5 * time.Second
)

// ApplicantStore loads applicants scoped to their organisation.
type ApplicantStore interface {
	GetApplicant(ctx context.Context, orgID, applicantID string) (*models.Applicant, error)
}

type TemplateSelector interface {
	Select(ctx context.Context, orgID, trigger, formID string) (*models.MailTemplate, error)
}

type AliasStore interface {
	ListAliases(ctx context.Context, orgID, templateID string) (map[string]string, error)
}

// Recorder receives every outcome. Failures are logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, n models.Notification) error
}

type Options struct {
	Applicants    ApplicantStore
	Templates     TemplateSelector
	Aliases       AliasStore // optional
	Transport     transport.Transport
	Recorder      Recorder                     // optional
	Observability *observability.Observability // optional
	Logger        logger.Logger
	Timeout       time.Duration
	TriggerPrefix string
}

type Dispatcher struct {
	applicants    ApplicantStore
	templates     TemplateSelector
	aliases       AliasStore
	transport     transport.Transport
	recorder      Recorder
	obs           *observability.Observability
	logger        logger.Logger
	tracer        trace.Tracer
	timeout       time.Duration
	triggerPrefix string
}

// Request identifies one status change to notify about.
type Request struct {
	ApplicantID string `json:"applicantId"`
	OrgID       string `json:"orgId"`
	Status      string `json:"status"`
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Applicants == nil {
		return nil, fmt.Errorf("applicant store is required")
	}
	if opts.Templates == nil {
		return nil, fmt.Errorf("template selector is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Dispatcher{
		applicants:    opts.Applicants,
		templates:     opts.Templates,
		aliases:       opts.Aliases,
		transport:     opts.Transport,
		recorder:      opts.Recorder,
		obs:           opts.Observability,
		logger:        logger.Component(opts.Logger, "dispatcher"),
		tracer:        observability.Tracer("hiring-notifications/dispatcher"),
		timeout:       timeout,
		triggerPrefix: opts.TriggerPrefix,
	}, nil
}

// Trigger maps an applicant status to the template trigger event.
func (d *Dispatcher) Trigger(status string) string {
	return d.triggerPrefix + status
}

// DispatchStatusNotification notifies the applicant about a new status. It never
// fails; the outcome is visible through logs, metrics and the audit recorder only.
func (d *Dispatcher) DispatchStatusNotification(ctx context.Context, applicantID, orgID, status string) {
	d.Dispatch(ctx, Request{ApplicantID: applicantID, OrgID: orgID, Status: status})
}

// Dispatch runs one notification under the dispatch timeout and reports what happened.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (n models.Notification) {
	start := time.Now()
	n = models.Notification{
		ID:              uuid.New().String(),
		ApplicantID:     req.ApplicantID,
		OrgID:           req.OrgID,
		ApplicantStatus: req.Status,
		Trigger:         d.Trigger(req.Status),
		At:              start.UTC(),
	}

	ctx, span := d.tracer.Start(ctx, "dispatch", trace.WithAttributes(
		attribute.String("applicant.id", req.ApplicantID),
		attribute.String("org.id", req.OrgID),
		attribute.String("trigger", n.Trigger),
	))

	defer func() {
		if r := recover(); r != nil {
			n.Outcome = models.OutcomeFailed
			n.Reason = models.ReasonInternalError
			n.Error = fmt.Sprintf("panic: %v", r)
		}
		n.DurationMs = time.Since(start).Milliseconds()
		d.finish(ctx, &n, span, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg, err := d.Render(ctx, req)
	if msg != nil {
		n.TemplateID = msg.TemplateID
		n.Recipient = msg.To
	}
	if err != nil {
		n.Outcome, n.Reason = classify(err)
		n.Error = err.Error()
		return n
	}

	messageID, err := d.send(ctx, msg)
	if err != nil {
		n.Outcome, n.Reason = classify(err)
		n.Error = err.Error()
		return n
	}

	n.Outcome = models.OutcomeSent
	n.Reason = models.ReasonDelivered
	n.MessageID = messageID
	return n
}

// Render builds the message a dispatch would send without sending it. Expected
// absences come back as StandardErrors (applicant, form, template, recipient).
// When a template was found the partially rendered message is returned with the error.
func (d *Dispatcher) Render(ctx context.Context, req Request) (*models.RenderedMessage, error) {
	applicant, err := d.applicants.GetApplicant(ctx, req.OrgID, req.ApplicantID)
	if errors.Is(err, store.ErrApplicantNotFound) || (err == nil && applicant == nil) {
		return nil, apperrors.NewApplicantNotFoundError(req.ApplicantID)
	}
	if err != nil {
		return nil, fmt.Errorf("load applicant: %w", err)
	}

	if applicant.FormID == "" {
		return nil, apperrors.NewApplicantFormMissingError(req.ApplicantID)
	}

	trigger := d.Trigger(req.Status)
	tmpl, err := d.templates.Select(ctx, req.OrgID, trigger, applicant.FormID)
	if errors.Is(err, selector.ErrNotFound) {
		return nil, apperrors.NewTemplateNotFoundError(req.OrgID, trigger, applicant.FormID)
	}
	if err != nil {
		return nil, fmt.Errorf("select template: %w", err)
	}

	resolver := placeholder.New(placeholder.WithAliases(d.loadAliases(ctx, req.OrgID, tmpl.ID)))
	msg := &models.RenderedMessage{
		TemplateID: tmpl.ID,
		To:         recipient(applicant),
		Subject:    sanitize.Text(resolver.Resolve(tmpl.Subject, applicant)),
		Body:       sanitize.Text(resolver.Resolve(richtext.Flatten(tmpl.Body), applicant)),
	}
	if msg.To == "" {
		return msg, apperrors.NewRecipientMissingError(req.ApplicantID)
	}
	return msg, nil
}

func (d *Dispatcher) loadAliases(ctx context.Context, orgID, templateID string) map[string]string {
	if d.aliases == nil {
		return nil
	}
	aliases, err := d.aliases.ListAliases(ctx, orgID, templateID)
	if err != nil {
		d.logger.Warn("Placeholder aliases unavailable, resolving without them", map[string]interface{}{
			"orgId":      orgID,
			"templateId": templateID,
			"error":      err.Error(),
		})
		return nil
	}
	return aliases
}

func (d *Dispatcher) send(ctx context.Context, msg *models.RenderedMessage) (string, error) {
	name := d.transport.Name()
	res, err := d.transport.Send(ctx, transport.Message{
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Body,
		HTML:    msg.Body,
	})
	if err != nil {
		if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.NewTransportTimeoutError(name, err)
		}
		return "", apperrors.NewTransportFailedError(name, err.Error())
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "send not accepted"
		}
		return "", apperrors.NewTransportFailedError(name, reason)
	}
	return res.MessageID, nil
}

func (d *Dispatcher) finish(ctx context.Context, n *models.Notification, span trace.Span, elapsed time.Duration) {
	defer span.End()

	metrics.NotificationsDispatched.WithLabelValues(n.Outcome, n.Reason).Inc()
	metrics.NotificationDispatchDuration.WithLabelValues(n.Outcome).Observe(elapsed.Seconds())
	d.obs.RecordDispatch(ctx, n.Outcome, n.Reason, elapsed)

	span.SetAttributes(
		attribute.String("notification.outcome", n.Outcome),
		attribute.String("notification.reason", n.Reason),
	)

	fields := map[string]interface{}{
		"notificationId": n.ID,
		"applicantId":    n.ApplicantID,
		"orgId":          n.OrgID,
		"trigger":        n.Trigger,
		"outcome":        n.Outcome,
		"reason":         n.Reason,
		"durationMs":     n.DurationMs,
	}
	if n.TemplateID != "" {
		fields["templateId"] = n.TemplateID
	}
	switch n.Outcome {
	case models.OutcomeSent:
		fields["messageId"] = n.MessageID
		d.logger.Info("Status notification sent", fields)
	case models.OutcomeSkipped:
		d.logger.Info("Status notification skipped", fields)
	default:
		fields["error"] = n.Error
		span.SetStatus(codes.Error, n.Reason)
		d.logger.Error("Status notification failed", fields)
	}

	if d.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.recorder.Record(rctx, *n); err != nil {
		d.logger.Warn("Failed to record notification outcome", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
	}
}

// recipient is the top-level email, else a non-empty string "email" in the payload.
func recipient(a *models.Applicant) string {
	if v, ok := a.Field("email"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := a.Payload().Lookup("email"); ok && v.Kind == models.KindString {
		return strings.TrimSpace(v.Str)
	}
	return ""
}

func classify(err error) (outcome, reason string) {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeApplicantNotFound):
		return models.OutcomeSkipped, models.ReasonApplicantNotFound
	case apperrors.HasCode(err, apperrors.ErrCodeApplicantFormMissing):
		return models.OutcomeSkipped, models.ReasonNoForm
	case apperrors.HasCode(err, apperrors.ErrCodeTemplateNotFound):
		return models.OutcomeSkipped, models.ReasonNoTemplate
	case apperrors.HasCode(err, apperrors.ErrCodeRecipientMissing):
		return models.OutcomeFailed, models.ReasonNoRecipient
	case apperrors.HasCode(err, apperrors.ErrCodeTransportTimeout):
		return models.OutcomeFailed, models.ReasonTransportTimeout
	case apperrors.HasCode(err, apperrors.ErrCodeTransportFailed):
		return models.OutcomeFailed, models.ReasonTransportFailed
	default:
		return models.OutcomeFailed, models.ReasonLookupFailed
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
