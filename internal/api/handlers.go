package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	apperrors "hiring-notifications/internal/common/errors"
	"hiring-notifications/internal/common/validation"
	"hiring-notifications/internal/notify/dispatcher"
	"hiring-notifications/internal/notify/queue"
	"hiring-notifications/internal/notify/store"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

var statusBodySchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"status": {Type: "string", MinLength: validation.IntPtr(1), MaxLength: validation.IntPtr(64)},
	},
	Required:             []string{"status"},
	AdditionalProperties: true,
}

type statusBody struct {
	Status string `json:"status"`
}

func (s *Server) changeStatus(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeStatus(w, r)
	if !ok {
		return
	}

	res, err := s.status.ChangeStatus(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "applicantID"), body.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) triggerNotification(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeStatus(w, r)
	if !ok {
		return
	}

	applicantID := chi.URLParam(r, "applicantID")
	if err := s.status.Notify(r.Context(), chi.URLParam(r, "orgID"), applicantID, body.Status); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"applicantId": applicantID,
		"status":      body.Status,
		"queued":      true,
	})
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeStatus(w, r)
	if !ok {
		return
	}

	msg, err := s.previewer.Render(r.Context(), dispatcher.Request{
		ApplicantID: chi.URLParam(r, "applicantID"),
		OrgID:       chi.URLParam(r, "orgID"),
		Status:      body.Status,
	})
	// A preview without a recipient is still worth showing.
	if err != nil && !(msg != nil && apperrors.HasCode(err, apperrors.ErrCodeRecipientMissing)) {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) lookupToken(w http.ResponseWriter, r *http.Request) {
	res, err := s.status.Lookup(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	code := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if code != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, code, map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) decodeStatus(w http.ResponseWriter, r *http.Request) (statusBody, bool) {
	var body statusBody

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, apperrors.NewInvalidRequestError("unreadable body"))
		return body, false
	}

	if result := validation.ValidateJSON(raw, statusBodySchema); !result.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": apperrors.NewInvalidRequestError(result.Error()),
		})
		return body, false
	}

	if err := json.Unmarshal(raw, &body); err != nil {
		s.writeError(w, apperrors.NewInvalidRequestError(err.Error()))
		return body, false
	}
	return body, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request error", map[string]interface{}{"error": err.Error()})
	}

	var stdErr *apperrors.StandardError
	switch {
	case errors.Is(err, store.ErrApplicantNotFound):
		stdErr = apperrors.NewResourceNotFoundError("applicants", err.Error())
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrClosed):
		stdErr = apperrors.NewExternalServiceError("dispatch-queue", err)
	default:
		stdErr = apperrors.Normalize(err)
	}
	writeJSON(w, code, map[string]interface{}{"error": stdErr})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrApplicantNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	}

	stdErr, ok := apperrors.AsStandardError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch stdErr.Code {
	case apperrors.ErrCodeInvalidStatus, apperrors.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case apperrors.ErrCodeApplicantNotFound, apperrors.ErrCodeApplicantFormMissing, apperrors.ErrCodeTemplateNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeRecipientMissing:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeQueueFull:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeQueryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
