package services

import (
	"errors"
	"fmt"
	"strings"

	"casefile/internal/artifact"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrParse         = errors.New("parse error")
	ErrIndexWrite    = errors.New("index write error")
	ErrPathMismatch  = errors.New("path mismatch")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above.
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

// FailureReason maps a stage error to the structured reason code persisted
// alongside a failed status.
func FailureReason(err error) artifact.FailureReason {
	switch {
	case errors.Is(err, ErrParse):
		return artifact.ReasonParseError
	case errors.Is(err, ErrIndexWrite):
		return artifact.ReasonIndexError
	case errors.Is(err, ErrPathMismatch):
		return artifact.ReasonPathMismatch
	default:
		return artifact.ReasonInternal
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
