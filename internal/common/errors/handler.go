// internal/common/errors/handler.go
package errors

import (
	"time"
)

// Exit codes returned by the runner, grouped by error category.
const (
	ExitOK             = 0
	ExitInternal       = 1
	ExitConfiguration  = 2
	ExitAuthentication = 3
	ExitRemoteService  = 4
	ExitRemoteJob      = 5
	ExitPrecondition   = 6
)

// ErrorHandler turns a pipeline failure into a log entry and a process exit code.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleRunError logs err with its category and returns the exit code for it.
func (h *ErrorHandler) HandleRunError(runID string, err error) int {
	if err == nil {
		return ExitOK
	}

	stdErr := h.normalizeError(err)
	category := GetErrorCategory(stdErr.Code)

	fields := map[string]interface{}{
		"runId":         runID,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": category,
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	h.logger.Error("Run failed", fields)

	return exitCodeFor(category)
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func exitCodeFor(category string) int {
	switch category {
	case "CONFIGURATION":
		return ExitConfiguration
	case "AUTHENTICATION":
		return ExitAuthentication
	case "REMOTE_SERVICE":
		return ExitRemoteService
	case "REMOTE_JOB":
		return ExitRemoteJob
	case "PRECONDITION":
		return ExitPrecondition
	default:
		return ExitInternal
	}
}
