// internal/workers/application/send-notification/handler.go
package sendnotification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hiring-notifications/internal/common/config"
	apperrors "hiring-notifications/internal/common/errors"
	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/common/metrics"
	"hiring-notifications/internal/common/observability"
	"hiring-notifications/internal/common/validation"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/dispatcher"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "send-notification"

// Dispatcher is satisfied by *dispatcher.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatcher.Request) models.Notification
}

type Handler struct {
	config     *Config
	dispatcher Dispatcher
	obs        *observability.Observability
	logger     logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Dispatcher    Dispatcher
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required for %s", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}

	return &Handler{
		config:     cfg,
		dispatcher: opts.Dispatcher,
		obs:        opts.Observability,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}, nil
}

// Handle always completes the job. A notification is best effort and never
// fails the process that changed the applicant status.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	var output *Output
	input, err := h.parseInput(job)
	if err != nil {
		h.logger.Warn("invalid job variables, skipping notification", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		output = &Output{
			NotificationID: uuid.New().String(),
			Status:         models.OutcomeSkipped,
			Reason:         models.ReasonInvalidInput,
			SentAt:         time.Now().UTC().Format(time.RFC3339),
		}
	} else {
		output = h.Execute(ctx, input)
	}

	h.completeJob(ctx, client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJobProcessed(ctx, output.Status)
	h.obs.RecordJobDuration(ctx, time.Since(start), output.Status)
}

// Execute runs the dispatch synchronously and maps its outcome to job variables.
func (h *Handler) Execute(ctx context.Context, input *Input) *Output {
	n := h.dispatcher.Dispatch(ctx, dispatcher.Request{
		ApplicantID: input.ApplicantID,
		OrgID:       input.OrgID,
		Status:      input.Status,
	})
	return &Output{
		NotificationID: n.ID,
		Status:         n.Outcome,
		Reason:         n.Reason,
		SentAt:         n.At.UTC().Format(time.RFC3339),
		MessageID:      n.MessageID,
		TemplateID:     n.TemplateID,
	}
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("parse job variables: %v", err))
	}

	result := validation.ValidateInput(variables, GetInputSchema())
	if !result.Valid {
		return nil, apperrors.NewInvalidRequestError(result.Error())
	}

	applicantID, ok := idString(variables["applicantId"])
	if !ok {
		return nil, apperrors.NewInvalidRequestError("applicantId must be a string or an integer")
	}

	return &Input{
		ApplicantID: applicantID,
		OrgID:       strings.TrimSpace(variables["orgId"].(string)),
		Status:      strings.TrimSpace(variables["status"].(string)),
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":         job.GetKey(),
		"notificationId": output.NotificationID,
		"status":         output.Status,
		"reason":         output.Reason,
	})
}

func idString(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case float64:
		if id != float64(int64(id)) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	default:
		return "", false
	}
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig != nil {
		if workerCfg, exists := appConfig.Workers[TaskType]; exists {
			cfg.Enabled = workerCfg.Enabled
			if workerCfg.MaxJobsActive > 0 {
				cfg.MaxJobsActive = workerCfg.MaxJobsActive
			}
			if workerCfg.Timeout > 0 {
				cfg.Timeout = config.GetDuration(workerCfg.Timeout)
			}
		}
	}
	return cfg
}
