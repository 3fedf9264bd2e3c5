// Package store reads applicants, mail templates and placeholder aliases from Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hiring-notifications/internal/common/database"
	apperrors "hiring-notifications/internal/common/errors"
	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/placeholder"
)

var ErrApplicantNotFound = errors.New("applicant not found")

const (
	applicantColumns = `id, form_id, status, email, token, data, created_at`

	queryApplicantByID    = `SELECT ` + applicantColumns + ` FROM applicants WHERE id = $1 AND org_id = $2`
	queryApplicantByToken = `SELECT ` + applicantColumns + ` FROM applicants WHERE token = $1`

	queryActiveTemplates = `
		SELECT id, org_id, form_id, trigger_event, is_active, subject, body, created_at
		FROM hr_mail_templates
		WHERE org_id = $1 AND trigger_event = $2 AND form_id = $3 AND is_active = true
		ORDER BY created_at, id`

	queryAliases = `
		SELECT key, mapping, template_id
		FROM hr_mail_placeholders
		WHERE org_id = $1 AND (template_id IS NULL OR template_id = $2)`

	queryLockStatus   = `SELECT status, form_id FROM applicants WHERE id = $1 AND org_id = $2 FOR UPDATE`
	queryUpdateStatus = `UPDATE applicants SET status = $1, updated_at = NOW() WHERE id = $2 AND org_id = $3`
)

type Postgres struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgres(db *sql.DB, log logger.Logger) *Postgres {
	return &Postgres{db: db, logger: logger.Component(log, "store")}
}

// GetApplicant loads an applicant of the organisation. Applicants of other
// organisations are reported as ErrApplicantNotFound.
func (s *Postgres) GetApplicant(ctx context.Context, orgID, applicantID string) (*models.Applicant, error) {
	return s.getApplicant(ctx, "applicant_by_id", queryApplicantByID, applicantID, orgID)
}

func (s *Postgres) GetApplicantByToken(ctx context.Context, token string) (*models.Applicant, error) {
	return s.getApplicant(ctx, "applicant_by_token", queryApplicantByToken, token)
}

func (s *Postgres) getApplicant(ctx context.Context, queryType, query string, args ...interface{}) (*models.Applicant, error) {
	var (
		a      models.Applicant
		formID sql.NullString
		email  sql.NullString
		token  sql.NullString
		data   []byte
	)

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &formID, &a.Status, &email, &token, &data, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrApplicantNotFound
	}
	if err != nil {
		return nil, queryError(queryType, err)
	}

	a.FormID = formID.String
	a.Email = email.String
	a.Token = token.String
	a.Data = data
	return &a, nil
}

// FindActiveTemplates returns every active template for the triple, oldest first.
func (s *Postgres) FindActiveTemplates(ctx context.Context, orgID, trigger, formID string) ([]models.MailTemplate, error) {
	rows, err := s.db.QueryContext(ctx, queryActiveTemplates, orgID, trigger, formID)
	if err != nil {
		return nil, queryError("active_templates", err)
	}
	defer rows.Close()

	var templates []models.MailTemplate
	for rows.Next() {
		var (
			t       models.MailTemplate
			subject sql.NullString
			body    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.OrgID, &t.FormID, &t.TriggerEvent, &t.Active, &subject, &body, &t.CreatedAt); err != nil {
			return nil, queryError("active_templates", err)
		}
		t.Subject = subject.String
		t.Body = body.String
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("active_templates", err)
	}
	return templates, nil
}

// ListAliases returns placeholder key -> mapping for the org. Template-specific rows
// override org-wide rows with the same key.
func (s *Postgres) ListAliases(ctx context.Context, orgID, templateID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, queryAliases, orgID, templateID)
	if err != nil {
		return nil, queryError("placeholder_aliases", err)
	}
	defer rows.Close()

	orgWide := map[string]string{}
	specific := map[string]string{}
	for rows.Next() {
		var (
			key, mapping string
			tmplID       sql.NullString
		)
		if err := rows.Scan(&key, &mapping, &tmplID); err != nil {
			return nil, queryError("placeholder_aliases", err)
		}
		key = placeholder.NormalizeKey(key)
		if key == "" {
			continue
		}
		if tmplID.Valid {
			specific[key] = mapping
		} else {
			orgWide[key] = mapping
		}
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("placeholder_aliases", err)
	}

	for k, v := range specific {
		orgWide[k] = v
	}
	return orgWide, nil
}

// UpdateStatus writes the status under a row lock and reports whether it changed.
// Only applicants of orgID are touched.
func (s *Postgres) UpdateStatus(ctx context.Context, orgID, applicantID, status string) (*models.StatusChange, error) {
	change := &models.StatusChange{ApplicantID: applicantID, Status: status}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var formID sql.NullString
		err := tx.QueryRowContext(ctx, queryLockStatus, applicantID, orgID).Scan(&change.PreviousStatus, &formID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrApplicantNotFound
		}
		if err != nil {
			return queryError("lock_status", err)
		}
		change.FormID = formID.String

		if change.PreviousStatus == status {
			return nil
		}
		if _, err := tx.ExecContext(ctx, queryUpdateStatus, status, applicantID, orgID); err != nil {
			return queryError("update_status", err)
		}
		change.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("applicant status written", map[string]interface{}{
		"orgId":       orgID,
		"applicantId": applicantID,
		"status":      status,
		"changed":     change.Changed,
	})
	return change, nil
}

func queryError(queryType string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(queryType)
	}
	return apperrors.NewQueryExecutionFailedError(queryType, err)
}

// Ping backs the readiness check.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
