package validators

import (
	"fmt"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidateUUID requires a well-formed, non-nil UUID string.
func ValidateUUID(value string, fieldName string) *ValidationResult {
	if value == "" {
		return required(value, fieldName)
	}

	if !govalidator.IsUUID(value) {
		return invalid(value, fieldName, "must be a valid UUID", "Please provide an identifier like '3f2b8c1e-0d4a-4c5e-9f7a-1b2c3d4e5f60'.")
	}

	if id, err := uuid.Parse(value); err != nil || id == uuid.Nil {
		return required(value, fieldName)
	}

	return success(value, fieldName)
}

// ValidateID requires a non-nil UUID.
func ValidateID(value uuid.UUID, fieldName string) *ValidationResult {
	if value == uuid.Nil {
		return required("", fieldName)
	}
	return success(value.String(), fieldName)
}

// ValidateDecimalPositive requires a value strictly greater than zero.
func ValidateDecimalPositive(value decimal.Decimal, fieldName string) *ValidationResult {
	if !value.IsPositive() {
		return invalid(value.String(), fieldName, "must be greater than zero", "Please provide a positive amount.")
	}
	return success(value.String(), fieldName)
}

// ValidateIntPositive requires a value strictly greater than zero.
func ValidateIntPositive(value int, fieldName string) *ValidationResult {
	if value <= 0 {
		return invalid(fmt.Sprint(value), fieldName, "must be greater than zero", "Please provide a positive number.")
	}
	return success(fmt.Sprint(value), fieldName)
}

func invalid(value, fieldName, problem, action string) *ValidationResult {
	return NewValidationResult(false, fieldName,
		WithValue(value),
		WithMessage(fmt.Sprintf("%s %s.", ToUserFriendlyName(fieldName), problem)),
		WithSuggestedAction(action),
		WithValidationCode(ValidationCodeInvalid),
	)
}
