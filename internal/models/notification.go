// internal/models/notification.go
package models

import "time"

// Notification outcomes
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Outcome reasons
const (
	ReasonDelivered         = "delivered"
	ReasonApplicantNotFound = "applicant_not_found"
	ReasonNoForm            = "no_form"
	ReasonNoTemplate        = "no_template"
	ReasonNoRecipient       = "no_recipient"
	ReasonLookupFailed      = "lookup_failed"
	ReasonTransportFailed   = "transport_failed"
	ReasonTransportTimeout  = "transport_timeout"
	ReasonInvalidInput      = "invalid_input"
	ReasonInternalError     = "internal_error"
)

// Notification records what a single status dispatch did.
type Notification struct {
	ID              string    `json:"id"`
	ApplicantID     string    `json:"applicantId"`
	OrgID           string    `json:"orgId"`
	ApplicantStatus string    `json:"applicantStatus"`
	Trigger         string    `json:"trigger"`
	TemplateID      string    `json:"templateId,omitempty"`
	Outcome         string    `json:"outcome"`
	Reason          string    `json:"reason"`
	Recipient       string    `json:"recipient,omitempty"`
	MessageID       string    `json:"messageId,omitempty"`
	Error           string    `json:"error,omitempty"`
	At              time.Time `json:"at"`
	DurationMs      int64     `json:"durationMs"`
}

func (n *Notification) Sent() bool {
	return n.Outcome == OutcomeSent
}
