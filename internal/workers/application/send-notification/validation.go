package sendnotification

import "hiring-notifications/internal/common/validation"

// applicantId has no type constraint: processes started from the form backend pass numeric ids.
func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"applicantId", "orgId", "status"},
		Properties: map[string]validation.Property{
			"applicantId": {
				Description: "Applicant identifier",
			},
			"orgId": {
				Type:        "string",
				Description: "Organization owning the form",
				MinLength:   validation.IntPtr(1),
			},
			"status": {
				Type:        "string",
				Description: "New applicant status",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(64),
			},
		},
		AdditionalProperties: true,
	}
}
