package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify returns a short label for the marker carried by err. Unmarked errors
// are reported as "unknown".
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
