package emailsend

import "hiring-notifications/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"to", "subject", "body"},
		Properties: map[string]validation.Property{
			"to": {
				Type:        "string",
				Description: "Recipient email address",
				MinLength:   validation.IntPtr(5),
				MaxLength:   validation.IntPtr(255),
			},
			"subject": {
				Type:        "string",
				Description: "Email subject",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(998),
			},
			"body": {
				Type:        "string",
				Description: "Plain text or rich-text document",
				MinLength:   validation.IntPtr(1),
			},
		},
		AdditionalProperties: true,
	}
}
