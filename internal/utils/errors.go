package utils

import (
	"context"
	"errors"
	"strings"
)

// ─── ERROR CLASSIFICATION ─────────────────────────────────────────────────

// IsTransientError reports whether retrying the same operation later can
// succeed.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "slowdown")
}

// IsFatalError reports infrastructure failures that should stop a worker.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := strings.ToLower(err.Error())

	// RabbitMQ connection issues
	if strings.Contains(errorStr, "connection closed") || strings.Contains(errorStr, "channel closed") {
		return true
	}

	// AWS authentication issues
	if strings.Contains(errorStr, "invalid credentials") || strings.Contains(errorStr, "access denied") {
		return true
	}

	return false
}
