package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/plaenen/purchasing/pkg/validators"
)

// Validate rejects configuration the service cannot run with.
func (c *Config) Validate() error {
	b := validators.NewValidationBuilder()

	b.Add(validators.ValidateStringEmpty(c.Service.Name, "service.name"))
	b.Add(oneOf(c.Service.LogLevel, "service.log_level", "debug", "info", "warn", "error"))
	b.Add(oneOf(c.Service.LogFormat, "service.log_format", "json", "text"))

	b.Add(validators.ValidateStringEmpty(c.Database.Path, "database.path"))
	b.Add(positiveDuration(c.Database.CommandTTL, "database.command_ttl"))

	if !c.NATS.Embedded {
		b.Add(validators.ValidateStringEmpty(c.NATS.URL, "nats.url"))
	}
	b.Add(validators.ValidateStringPattern(c.NATS.StreamName, "nats.stream_name", `^[A-Za-z0-9_-]+$`, "stream name"))
	b.Add(validators.ValidateStringPattern(c.NATS.SubjectPrefix, "nats.subject_prefix", `^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`, "subject"))

	if c.Outbox.Enabled {
		b.Add(positiveDuration(c.Outbox.PollInterval, "outbox.poll_interval"))
		b.Add(validators.ValidateIntPositive(c.Outbox.BatchSize, "outbox.batch_size"))
	}

	b.Add(validators.ValidateStringEmpty(c.HTTP.Addr, "http.addr"))

	if c.Telemetry.TraceSampleRate < 0 || c.Telemetry.TraceSampleRate > 1 {
		b.Add(validators.NewValidationResult(false, "telemetry.trace_sample_rate",
			validators.WithValue(fmt.Sprint(c.Telemetry.TraceSampleRate)),
			validators.WithMessage("Trace sample rate must be between 0 and 1."),
			validators.WithValidationCode(validators.ValidationCodeInvalid),
		))
	}

	b.Add(validators.ValidateDecimalPositive(c.Approval.SecondStepThreshold, "approval.second_step_threshold"))
	if !c.Approval.ThirdStepThreshold.GreaterThan(c.Approval.SecondStepThreshold) {
		b.Add(validators.NewValidationResult(false, "approval.third_step_threshold",
			validators.WithValue(c.Approval.ThirdStepThreshold.String()),
			validators.WithMessage("Third step threshold must be greater than the second step threshold."),
			validators.WithValidationCode(validators.ValidationCodeInvalid),
		))
	}

	for _, role := range []string{RoleManager, RoleDirector, RoleExecutive} {
		approver := c.Approval.Approvers[role]
		field := "approval.approvers." + role
		b.Add(validators.ValidateUUID(approver.ID, field+".id"))
		b.Add(validators.ValidateStringEmpty(approver.Name, field+".name"))
		if approver.Email != "" {
			b.Add(validators.ValidateEmail(approver.Email, field+".email"))
		}
	}

	return b.Err()
}

func oneOf(value, fieldName string, allowed ...string) *validators.ValidationResult {
	if slices.Contains(allowed, value) {
		return validators.NewValidationResult(true, fieldName, validators.WithValue(value), validators.WithValidationCode(validators.ValidationCodeSuccess))
	}
	return validators.NewValidationResult(false, fieldName,
		validators.WithValue(value),
		validators.WithMessage(fmt.Sprintf("%s must be one of %v.", validators.ToUserFriendlyName(fieldName), allowed)),
		validators.WithValidationCode(validators.ValidationCodeInvalid),
	)
}

func positiveDuration(d time.Duration, fieldName string) *validators.ValidationResult {
	if d > 0 {
		return validators.NewValidationResult(true, fieldName, validators.WithValidationCode(validators.ValidationCodeSuccess))
	}
	return validators.NewValidationResult(false, fieldName,
		validators.WithMessage(fmt.Sprintf("%s must be a positive duration.", validators.ToUserFriendlyName(fieldName))),
		validators.WithValidationCode(validators.ValidationCodeInvalid),
	)
}
