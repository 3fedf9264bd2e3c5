package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hiring-notifications/internal/common/logger"

	"github.com/lib/pq"
)

// TemplateChannel is the NOTIFY channel fed by the hr_mail_templates trigger
// (migrations/002_template_changes.sql).
const TemplateChannel = "hr_mail_templates_changed"

const listenerPingInterval = 90 * time.Second

// TemplateChange names the triple touched by one template write.
type TemplateChange struct {
	OrgID   string `json:"orgId"`
	Trigger string `json:"trigger"`
	FormID  string `json:"formId"`
}

// TemplateEvents is satisfied by *selector.Selector.
type TemplateEvents interface {
	Invalidate(ctx context.Context, orgID, trigger, formID string)
	Purge(ctx context.Context)
}

// TemplateListener turns template writes into cache invalidations.
type TemplateListener struct {
	dsn    string
	events TemplateEvents
	logger logger.Logger
}

func NewTemplateListener(dsn string, events TemplateEvents, log logger.Logger) *TemplateListener {
	return &TemplateListener{dsn: dsn, events: events, logger: logger.Component(log, "template-listener")}
}

// Run listens on TemplateChannel until ctx is done.
func (l *TemplateListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, time.Second, time.Minute, l.onEvent)
	defer listener.Close()

	if err := listener.Listen(TemplateChannel); err != nil {
		return fmt.Errorf("listen %s: %w", TemplateChannel, err)
	}
	l.logger.Info("Listening for template changes", map[string]interface{}{"channel": TemplateChannel})

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			l.handle(ctx, n)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("template listener ping failed", map[string]interface{}{"error": err.Error()})
				}
			}()
		}
	}
}

// handle applies one notification. pq delivers nil after a reconnect, when
// changes may have been missed, so every cached template is dropped.
func (l *TemplateListener) handle(ctx context.Context, n *pq.Notification) {
	if n == nil {
		l.logger.Warn("Template listener reconnected, purging template caches", nil)
		l.events.Purge(ctx)
		return
	}

	change, err := ParseTemplateChange(n.Extra)
	if err != nil {
		l.logger.Warn("Unreadable template change, purging template caches", map[string]interface{}{
			"payload": n.Extra,
			"error":   err.Error(),
		})
		l.events.Purge(ctx)
		return
	}

	l.logger.Debug("template changed", map[string]interface{}{
		"orgId":   change.OrgID,
		"trigger": change.Trigger,
		"formId":  change.FormID,
	})
	l.events.Invalidate(ctx, change.OrgID, change.Trigger, change.FormID)
}

func (l *TemplateListener) onEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventDisconnected:
		l.logger.Warn("template listener disconnected", map[string]interface{}{"error": fmt.Sprint(err)})
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("template listener reconnect failed", map[string]interface{}{"error": fmt.Sprint(err)})
	case pq.ListenerEventReconnected:
		l.logger.Info("template listener reconnected", nil)
	}
}

// ParseTemplateChange decodes the trigger payload.
func ParseTemplateChange(payload string) (TemplateChange, error) {
	var change TemplateChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return TemplateChange{}, fmt.Errorf("decode template change: %w", err)
	}
	if change.OrgID == "" || change.FormID == "" {
		return TemplateChange{}, errors.New("template change without orgId or formId")
	}
	return change, nil
}
