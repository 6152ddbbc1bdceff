package validators

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Casers are stateful, so each call builds its own.
func title(s string) string { return cases.Title(language.English).String(s) }
func lower(s string) string { return cases.Lower(language.English).String(s) }

// ToUserFriendlyName converts snake_case field names to user-friendly names
// Examples: "first_name" -> "First name", "line_items.0.unit_price" -> "Line items 0 unit price"
func ToUserFriendlyName(fieldName string) string {
	if fieldName == "" {
		return fieldName
	}

	words := strings.FieldsFunc(fieldName, func(r rune) bool {
		return r == '_' || r == '.'
	})
	if len(words) == 0 {
		return fieldName
	}

	for i, word := range words {
		if i == 0 {
			words[i] = title(word)
		} else {
			words[i] = lower(word)
		}
	}
	return strings.Join(words, " ")
}

func success(value, fieldName string) *ValidationResult {
	return NewValidationResult(true, fieldName, WithValue(value), WithValidationCode(ValidationCodeSuccess))
}

func required(value, fieldName string) *ValidationResult {
	name := ToUserFriendlyName(fieldName)
	return NewValidationResult(false, fieldName,
		WithValue(value),
		WithMessage(fmt.Sprintf("%s is required.", name)),
		WithSuggestedAction(fmt.Sprintf("Please provide a valid %s.", lower(name))),
		WithValidationCode(ValidationCodeRequired),
	)
}

// ValidateStringEmpty fails for empty or whitespace-only values.
func ValidateStringEmpty(value string, fieldName string) *ValidationResult {
	if strings.TrimSpace(value) == "" {
		return required(value, fieldName)
	}
	return success(value, fieldName)
}

// ValidateStringLength validates that a string meets minimum and maximum length requirements
func ValidateStringLength(value string, fieldName string, minLength, maxLength int) *ValidationResult {
	name := ToUserFriendlyName(fieldName)
	length := utf8.RuneCountInString(value)

	if length < minLength {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must be at least %d characters long.", name, minLength)),
			WithSuggestedAction(fmt.Sprintf("Please provide a %s with at least %d characters.", lower(name), minLength)),
			WithValidationCode(ValidationCodeInvalid),
			WithMetadata("min_length", minLength),
		)
	}

	if length > maxLength {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must be no more than %d characters long.", name, maxLength)),
			WithSuggestedAction(fmt.Sprintf("Please provide a %s with no more than %d characters.", lower(name), maxLength)),
			WithValidationCode(ValidationCodeInvalid),
			WithMetadata("max_length", maxLength),
		)
	}

	return success(value, fieldName)
}

// ValidateStringPattern validates that a string matches a regular expression pattern
func ValidateStringPattern(value string, fieldName string, pattern string, patternName string) *ValidationResult {
	if value == "" {
		return required(value, fieldName)
	}

	if !govalidator.Matches(value, pattern) {
		name := ToUserFriendlyName(fieldName)
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("Invalid %s format.", lower(name))),
			WithSuggestedAction(fmt.Sprintf("Please provide a valid %s that matches the %s pattern.", lower(name), patternName)),
			WithValidationCode(ValidationCodeInvalid),
		)
	}

	return success(value, fieldName)
}
