package sendnotification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"hiring-notifications/internal/common/config"
	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/dispatcher"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Dispatcher
// ==========================

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req dispatcher.Request) models.Notification {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Notification)
}

// ==========================
// Mock Job Helper
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "applicant-review",
		ElementId:          "Activity_NotifyApplicant",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func newTestHandler(t *testing.T, d Dispatcher) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: DefaultConfig(),
		Dispatcher:   d,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	tests := []struct {
		name    string
		opts    HandlerOptions
		wantErr string
	}{
		{
			name: "valid configuration",
			opts: HandlerOptions{CustomConfig: DefaultConfig(), Dispatcher: new(MockDispatcher)},
		},
		{
			name:    "missing dispatcher",
			opts:    HandlerOptions{CustomConfig: DefaultConfig()},
			wantErr: "dispatcher is required",
		},
		{
			name:    "invalid timeout",
			opts:    HandlerOptions{CustomConfig: &Config{MaxJobsActive: 1}, Dispatcher: new(MockDispatcher)},
			wantErr: "timeout must be positive",
		},
		{
			name:    "invalid max jobs active",
			opts:    HandlerOptions{CustomConfig: &Config{Timeout: time.Second}, Dispatcher: new(MockDispatcher)},
			wantErr: "max_jobs_active must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, h)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, h.logger)
		})
	}
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	appCfg := &config.Config{Workers: map[string]config.WorkerConfig{
		TaskType: {Enabled: true, MaxJobsActive: 12, Timeout: 4000},
	}}

	cfg := createConfigFromAppConfig(appCfg, nil)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 12, cfg.MaxJobsActive)
	assert.Equal(t, 4*time.Second, cfg.Timeout)

	assert.Equal(t, DefaultConfig(), createConfigFromAppConfig(nil, nil))
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := newTestHandler(t, new(MockDispatcher))

	tests := []struct {
		name      string
		variables map[string]interface{}
		want      *Input
		wantErr   bool
	}{
		{
			name:      "string id",
			variables: map[string]interface{}{"applicantId": "a-1", "orgId": "org-1", "status": " approved "},
			want:      &Input{ApplicantID: "a-1", OrgID: "org-1", Status: "approved"},
		},
		{
			name:      "numeric id",
			variables: map[string]interface{}{"applicantId": 42, "orgId": "org-1", "status": "rejected"},
			want:      &Input{ApplicantID: "42", OrgID: "org-1", Status: "rejected"},
		},
		{
			name:      "extra process variables are ignored",
			variables: map[string]interface{}{"applicantId": "a-1", "orgId": "org-1", "status": "approved", "reviewer": "kim"},
			want:      &Input{ApplicantID: "a-1", OrgID: "org-1", Status: "approved"},
		},
		{
			name:      "fractional id",
			variables: map[string]interface{}{"applicantId": 4.5, "orgId": "org-1", "status": "approved"},
			wantErr:   true,
		},
		{
			name:      "missing status",
			variables: map[string]interface{}{"applicantId": "a-1", "orgId": "org-1"},
			wantErr:   true,
		},
		{
			name:      "empty org",
			variables: map[string]interface{}{"applicantId": "a-1", "orgId": "", "status": "approved"},
			wantErr:   true,
		},
		{
			name:      "object id",
			variables: map[string]interface{}{"applicantId": map[string]interface{}{}, "orgId": "org-1", "status": "approved"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.parseInput(createMockJob(1, tt.variables))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name         string
		notification models.Notification
		want         *Output
	}{
		{
			name: "sent",
			notification: models.Notification{
				ID: "n-1", Outcome: models.OutcomeSent, Reason: models.ReasonDelivered,
				MessageID: "<m@x>", TemplateID: "t-1", At: at,
			},
			want: &Output{
				NotificationID: "n-1", Status: "sent", Reason: "delivered",
				SentAt: "2026-05-04T09:30:00Z", MessageID: "<m@x>", TemplateID: "t-1",
			},
		},
		{
			name: "no template is a completed skip",
			notification: models.Notification{
				ID: "n-2", Outcome: models.OutcomeSkipped, Reason: models.ReasonNoTemplate, At: at,
			},
			want: &Output{NotificationID: "n-2", Status: "skipped", Reason: "no_template", SentAt: "2026-05-04T09:30:00Z"},
		},
		{
			name: "transport failure is still an output",
			notification: models.Notification{
				ID: "n-3", Outcome: models.OutcomeFailed, Reason: models.ReasonTransportFailed, At: at,
			},
			want: &Output{NotificationID: "n-3", Status: "failed", Reason: "transport_failed", SentAt: "2026-05-04T09:30:00Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(MockDispatcher)
			d.On("Dispatch", mock.Anything, dispatcher.Request{ApplicantID: "a-1", OrgID: "org-1", Status: "approved"}).
				Return(tt.notification)

			got := newTestHandler(t, d).Execute(context.Background(), &Input{ApplicantID: "a-1", OrgID: "org-1", Status: "approved"})

			assert.Equal(t, tt.want, got)
			d.AssertExpectations(t)
		})
	}
}

func TestInputSchema_RequiresTriple(t *testing.T) {
	schema := GetInputSchema()
	assert.ElementsMatch(t, []string{"applicantId", "orgId", "status"}, schema.Required)
}
