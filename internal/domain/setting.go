package domain

import (
	"strconv"
	"strings"
	"time"
)

// SettingCategory drives the access policy for a setting key.
type SettingCategory string

const (
	SettingPublic   SettingCategory = "PUBLIC"
	SettingPrivate  SettingCategory = "PRIVATE"
	SettingCritical SettingCategory = "CRITICAL"
)

// Security-policy settings that drive PIN lockout.
const (
	SettingMaxLoginAttempts       = "MAX_LOGIN_ATTEMPTS"
	SettingLockoutDurationMinutes = "LOCKOUT_DURATION_MINUTES"
)

// RedactedValue replaces CRITICAL values in audit snapshots.
const RedactedValue = "***"

type Setting struct {
	Key       string          `json:"key"`
	Value     string          `json:"value"`
	Category  SettingCategory `json:"category"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type UpdateSettingRequest struct {
	Value string `json:"value"`
	PIN   string `json:"pin"`
}

func (r *UpdateSettingRequest) Validate() error {
	if len(r.Value) > 4096 {
		return Validationf("setting value is too long")
	}
	return nil
}

// NormalizeSettingKey upper-cases and trims a key.
func NormalizeSettingKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ValidateSettingValue checks values of keys whose content the service itself interprets.
func ValidateSettingValue(key, value string) error {
	switch key {
	case SettingMaxLoginAttempts:
		return validatePositiveInt(key, value, 100)
	case SettingLockoutDurationMinutes:
		return validatePositiveInt(key, value, 24*60)
	}
	return nil
}

func validatePositiveInt(key, value string, max int) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 1 || n > max {
		return Validationf("%s must be an integer between 1 and %d", key, max)
	}
	return nil
}
