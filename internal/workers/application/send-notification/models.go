// internal/workers/application/send-notification/models.go
package sendnotification

type Input struct {
	ApplicantID string `json:"applicantId"`
	OrgID       string `json:"orgId"`
	Status      string `json:"status"`
}

// Output is written back to the process instance. Status is the notification
// outcome (sent, skipped, failed), not the applicant status.
type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
	SentAt         string `json:"sentAt"` // ISO 8601
	MessageID      string `json:"messageId,omitempty"`
	TemplateID     string `json:"templateId,omitempty"`
}
