package contact

import (
	"claims-intake/internal/common/validation"
	"claims-intake/internal/models"
)

func intPtr(v int) *int { return &v }

// userInfoSchema covers the per-field shape constraints. The cross-field
// rules (claim id or phone, phone digit count) are checked separately.
var userInfoSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"name": {
			Type:      "string",
			MinLength: intPtr(2),
			MaxLength: intPtr(100),
		},
		"claimId": {
			Type:      "string",
			MinLength: intPtr(1),
			MaxLength: intPtr(50),
		},
		"phone": {
			Type: "string",
		},
		"location": {
			Type:      "string",
			MaxLength: intPtr(200),
		},
	},
	Required: []string{"name"},
}

// ValidateUserInfo checks already-normalized contact details and returns a
// map of field name to error message. Either a claim id or a phone number
// must be present; when both are given, both must be valid.
func ValidateUserInfo(info models.UserInfo) map[string]string {
	input := map[string]interface{}{}
	if info.Name != "" {
		input["name"] = info.Name
	}
	if info.ClaimID != "" {
		input["claimId"] = info.ClaimID
	}
	if info.Phone != "" {
		input["phone"] = info.Phone
	}
	if info.Location != "" {
		input["location"] = info.Location
	}

	fieldErrors := make(map[string]string)
	result := validation.ValidateInput(input, userInfoSchema)
	for _, verr := range result.Errors {
		if _, seen := fieldErrors[verr.Field]; !seen {
			fieldErrors[verr.Field] = verr.Message
		}
	}

	if info.ClaimID == "" && info.Phone == "" {
		fieldErrors["claimId"] = "either a claim id or a phone number is required"
	}

	if info.Phone != "" && !validation.ValidatePhone(info.Phone) {
		fieldErrors["phone"] = "phone number must contain at least 10 digits"
	}

	return fieldErrors
}
