// internal/models/applicant.go
package models

import (
	"encoding/json"
	"time"
)

type Applicant struct {
	ID        string          `json:"id"`
	FormID    string          `json:"formId,omitempty"`
	Status    string          `json:"status"`
	Email     string          `json:"email,omitempty"`
	Token     string          `json:"token,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Field returns a direct (top-level) field by name. Empty fields count as absent.
func (a *Applicant) Field(key string) (string, bool) {
	var v string
	switch key {
	case "id":
		v = a.ID
	case "formId", "form_id":
		v = a.FormID
	case "status":
		v = a.Status
	case "email":
		v = a.Email
	case "token":
		v = a.Token
	case "createdAt", "created_at":
		if !a.CreatedAt.IsZero() {
			v = a.CreatedAt.UTC().Format(time.RFC3339)
		}
	}
	return v, v != ""
}

// Payload decodes the submission data. It never fails; unreadable data is an empty map.
func (a *Applicant) Payload() Value {
	return ParsePayload(a.Data)
}

// StatusLookup is the public view of an applicant behind a status token.
type StatusLookup struct {
	Token  string `json:"token"`
	Status string `json:"status"`
	FormID string `json:"formId,omitempty"`
}

// StatusChange is the result of writing an applicant status.
type StatusChange struct {
	ApplicantID    string `json:"applicantId"`
	FormID         string `json:"formId,omitempty"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus"`
	Changed        bool   `json:"changed"`
}
