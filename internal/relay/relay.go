// Package relay serves POST /send-email, the HTTP mail endpoint the dispatcher's relay transport talks to.
package relay

import (
	"context"
	"encoding/json"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/common/metrics"
	"hiring-notifications/internal/common/validation"
	"hiring-notifications/internal/notify/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Sender is satisfied by *transport.SMTP.
type Sender interface {
	Send(ctx context.Context, msg transport.Message) (transport.Result, error)
}

type Options struct {
	Sender         Sender
	AllowedOrigins []string
	SendTimeout    time.Duration
	Logger         logger.Logger
}

type Server struct {
	sender  Sender
	timeout time.Duration
	logger  logger.Logger
	ugc     *bluemonday.Policy
	strict  *bluemonday.Policy
}

func sendSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"to":      {Type: "string", Format: "email"},
			"subject": {Type: "string", MinLength: validation.IntPtr(1), MaxLength: validation.IntPtr(998)},
			"text":    {Type: "string"},
			"html":    {Type: "string"},
		},
		Required:             []string{"to", "subject"},
		AdditionalProperties: true,
	}
}

func NewRouter(opts Options) http.Handler {
	s := &Server{
		sender:  opts.Sender,
		timeout: opts.SendTimeout,
		logger:  logger.Component(opts.Logger, "mail-relay"),
		ugc:     bluemonday.UGCPolicy(),
		strict:  bluemonday.StrictPolicy(),
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/send-email", s.sendEmail)
	return r
}

func (s *Server) sendEmail(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.reject(w, http.StatusBadRequest, "invalid_request", "read body: "+err.Error())
		return
	}

	if result := validation.ValidateJSON(raw, sendSchema()); !result.Valid {
		s.reject(w, http.StatusBadRequest, "invalid_request", result.Error())
		return
	}

	var msg transport.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.reject(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	msg = s.prepare(msg)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.sender.Send(ctx, msg)
	if err == nil && !res.Success {
		err = sendError(res.Error)
	}
	if err != nil {
		s.logger.Error("error sending email", map[string]interface{}{
			"to":    msg.To,
			"error": err.Error(),
		})
		s.reject(w, http.StatusInternalServerError, "failed", err.Error())
		return
	}

	metrics.MailRelayRequests.WithLabelValues("sent").Inc()
	s.logger.Info("email sent", map[string]interface{}{
		"to":        msg.To,
		"messageId": res.MessageID,
	})
	writeJSON(w, http.StatusOK, transport.Result{Success: true, MessageID: res.MessageID})
}

// prepare sanitizes the html part and fills in the text part from it when missing.
func (s *Server) prepare(msg transport.Message) transport.Message {
	msg.To = strings.TrimSpace(msg.To)
	if msg.HTML != "" {
		msg.HTML = s.ugc.Sanitize(msg.HTML)
		if strings.TrimSpace(msg.Text) == "" {
			msg.Text = s.plainText(msg.HTML)
		}
	}
	return msg
}

func (s *Server) plainText(markup string) string {
	for _, tag := range []string{"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>"} {
		markup = strings.ReplaceAll(markup, tag, tag+"\n")
	}
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(markup)))
}

func (s *Server) reject(w http.ResponseWriter, code int, result, reason string) {
	metrics.MailRelayRequests.WithLabelValues(result).Inc()
	writeJSON(w, code, transport.Result{Success: false, Error: reason})
}

type sendError string

func (e sendError) Error() string {
	if e == "" {
		return "send not accepted"
	}
	return string(e)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
