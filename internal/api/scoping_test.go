package api

import (
	"context"
	"net/http"
	"testing"

	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/notify/dispatcher"
	"hiring-notifications/internal/notify/selector"
	"hiring-notifications/internal/notify/status"
	"hiring-notifications/internal/notify/store"
	"hiring-notifications/internal/notify/transport"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enqueued struct {
	reqs []dispatcher.Request
}

func (q *enqueued) Enqueue(req dispatcher.Request) error {
	q.reqs = append(q.reqs, req)
	return nil
}

type refusingTransport struct {
	t *testing.T
}

func (r refusingTransport) Name() string { return "refusing" }

func (r refusingTransport) Send(context.Context, transport.Message) (transport.Result, error) {
	r.t.Errorf("no message may be sent")
	return transport.Result{}, nil
}

// setupStoreRouter serves the API from the Postgres store on sqlmock.
func setupStoreRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock, *enqueued) {
	t.Helper()
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewTestLogger(t)
	records := store.NewPostgres(db, log)

	disp, err := dispatcher.New(dispatcher.Options{
		Applicants: records,
		Templates:  selector.New(records, log),
		Aliases:    records,
		Transport:  refusingTransport{t: t},
		Logger:     log,
	})
	require.NoError(t, err)

	q := &enqueued{}
	svc := status.NewService(records, q, []string{"submitted", "reviewing", "approved", "rejected"}, log)

	return NewRouter(Options{Status: svc, Previewer: disp, Logger: log}), sqlMock, q
}

// ==========================
// Organisation scoping
// ==========================

// Applicant 42 belongs to org-a. Every org-b request below finds no row.
func TestApplicantOfAnotherOrganisation(t *testing.T) {
	noRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "form_id", "status", "email", "token", "data", "created_at"})
	}

	tests := []struct {
		name    string
		method  string
		path    string
		expect  func(m sqlmock.Sqlmock)
		wantErr string
	}{
		{
			name:   "status change",
			method: http.MethodPut,
			path:   "/v1/orgs/org-b/applicants/42/status",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectQuery(`SELECT status, form_id FROM applicants WHERE id = \$1 AND org_id = \$2 FOR UPDATE`).
					WithArgs("42", "org-b").
					WillReturnRows(sqlmock.NewRows([]string{"status", "form_id"}))
				m.ExpectRollback()
			},
			wantErr: "RESOURCE_NOT_FOUND",
		},
		{
			name:   "preview",
			method: http.MethodPost,
			path:   "/v1/orgs/org-b/applicants/42/preview",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`FROM applicants WHERE id = \$1 AND org_id = \$2`).
					WithArgs("42", "org-b").
					WillReturnRows(noRows())
			},
			wantErr: "APPLICANT_NOT_FOUND",
		},
		{
			name:   "notification trigger",
			method: http.MethodPost,
			path:   "/v1/orgs/org-b/applicants/42/notifications",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`FROM applicants WHERE id = \$1 AND org_id = \$2`).
					WithArgs("42", "org-b").
					WillReturnRows(noRows())
			},
			wantErr: "RESOURCE_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sqlMock, q := setupStoreRouter(t)
			tt.expect(sqlMock)

			rec := do(h, tt.method, tt.path, `{"status":"approved"}`)

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, rec))
			assert.NotContains(t, rec.Body.String(), "@")
			assert.Empty(t, q.reqs)
			assert.NoError(t, sqlMock.ExpectationsWereMet())
		})
	}
}
