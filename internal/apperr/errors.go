package apperr

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid setting. Setting is the
// exact environment/config key so operators can fix it without reading code.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: %s is not set", e.Setting)
	}
	return fmt.Sprintf("configuration error: %s %s", e.Setting, e.Reason)
}

// EmptyInputError means the caller gave no usable text.
type EmptyInputError struct {
	Field string
}

func (e *EmptyInputError) Error() string {
	if e.Field == "" {
		return "empty input"
	}
	return fmt.Sprintf("empty input: %s", e.Field)
}

// UpstreamError is the single normalized error for embedding and completion
// backends. Error() returns the upstream message verbatim.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: upstream error (status %d)", e.Service, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func Missing(setting string) error {
	return &ConfigurationError{Setting: setting}
}

func Invalid(setting, reason string) error {
	return &ConfigurationError{Setting: setting, Reason: reason}
}

func Empty(field string) error {
	return &EmptyInputError{Field: field}
}

func Upstream(service string, status int, message string, err error) error {
	return &UpstreamError{Service: service, StatusCode: status, Message: message, Err: err}
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsEmptyInput(err error) bool {
	var ee *EmptyInputError
	return errors.As(err, &ee)
}

func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
