// internal/models/template.go
package models

import "time"

type MailTemplate struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"orgId"`
	FormID       string    `json:"formId"`
	TriggerEvent string    `json:"triggerEvent"`
	Active       bool      `json:"active"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RenderedMessage is a template after placeholder resolution and sanitizing.
type RenderedMessage struct {
	TemplateID string `json:"templateId"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}
