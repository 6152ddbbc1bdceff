package validators

import (
	"fmt"

	"github.com/asaskevich/govalidator"
)

// ValidateEmail requires a syntactically valid email address.
func ValidateEmail(value string, fieldName string) *ValidationResult {
	if value == "" {
		return required(value, fieldName)
	}

	if !govalidator.IsEmail(value) {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("Please enter a valid %s.", lower(ToUserFriendlyName(fieldName)))),
			WithSuggestedAction("Please provide a valid email address, e.g., 'name@example.com'."),
			WithValidationCode(ValidationCodeInvalid),
		)
	}

	return success(value, fieldName)
}
