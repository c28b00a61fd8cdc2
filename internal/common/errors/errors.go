// Package errors provides standardized error handling for the work item pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Configuration errors
const (
	ErrCodeConfigInvalid     ErrorCode = "CONFIG_INVALID"
	ErrCodeCredentialMissing ErrorCode = "CREDENTIAL_MISSING"
)

// Authentication errors
const (
	ErrCodeAuthTokenFailed           ErrorCode = "AUTH_TOKEN_FAILED"
	ErrCodeAPIUnauthorized           ErrorCode = "API_UNAUTHORIZED"
	ErrCodeStorageCredentialsInvalid ErrorCode = "STORAGE_CREDENTIALS_INVALID"
)

// Storage, network and remote service errors
const (
	ErrCodeStorageSigningFailed ErrorCode = "STORAGE_SIGNING_FAILED"
	ErrCodeNetworkError         ErrorCode = "NETWORK_ERROR"
	ErrCodeAPIError             ErrorCode = "API_ERROR"
	ErrCodeActivityUpsertFailed ErrorCode = "ACTIVITY_UPSERT_FAILED"
	ErrCodeWorkItemSubmitFailed ErrorCode = "WORKITEM_SUBMIT_FAILED"
	ErrCodeDownloadFailed       ErrorCode = "DOWNLOAD_FAILED"
)

// Precondition errors
const (
	ErrCodeDownloadPrecondition    ErrorCode = "DOWNLOAD_PRECONDITION_FAILED"
	ErrCodeWorkItemArgumentInvalid ErrorCode = "WORKITEM_ARGUMENT_INVALID"
	ErrCodeDefinitionInvalid       ErrorCode = "ACTIVITY_DEFINITION_INVALID"
)

// Remote job errors
const (
	ErrCodeWorkItemFailed      ErrorCode = "WORKITEM_FAILED"
	ErrCodeWorkItemPollTimeout ErrorCode = "WORKITEM_POLL_TIMEOUT"
)

// Optional side steps
const (
	ErrCodeHistoryWriteFailed     ErrorCode = "HISTORY_WRITE_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewConfigInvalidError creates a non-retryable configuration error.
func NewConfigInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigInvalid,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCredentialMissingError lists every credential key that could not be resolved.
func NewCredentialMissingError(keys []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCredentialMissing,
		Message:   "Required credentials are not configured",
		Details:   fmt.Sprintf("missing: %s", strings.Join(keys, ", ")),
		Retryable: false,
		Metadata:  map[string]interface{}{"keys": keys},
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthTokenFailedError creates a non-retryable token acquisition error.
func NewAuthTokenFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthTokenFailed,
		Message:   "Failed to acquire access token",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAPIUnauthorizedError is returned when the service rejects the bearer token.
func NewAPIUnauthorizedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAPIUnauthorized,
		Message:   "Design Automation API rejected the access token",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageCredentialsInvalidError marks a signing failure caused by bad AWS keys.
func NewStorageCredentialsInvalidError(bucket, key string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageCredentialsInvalid,
		Message:   "Check the provided AWS credentials",
		Details:   fmt.Sprintf("bucket: %s, key: %s, error: %v", bucket, key, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageSigningFailedError creates a signing error unrelated to credentials.
func NewStorageSigningFailedError(bucket, key string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageSigningFailed,
		Message:   "Failed to generate presigned URL",
		Details:   fmt.Sprintf("bucket: %s, key: %s, error: %v", bucket, key, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNetworkError,
		Message:   fmt.Sprintf("Network error during %s", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAPIError wraps an unexpected HTTP status from the service.
func NewAPIError(operation string, statusCode int, body string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAPIError,
		Message:   fmt.Sprintf("Design Automation API error during %s", operation),
		Details:   fmt.Sprintf("status: %d, body: %s", statusCode, body),
		Retryable: IsTransientHTTPStatus(statusCode),
		Metadata:  map[string]interface{}{"statusCode": statusCode},
		Timestamp: time.Now().UTC(),
	}
}

// NewActivityUpsertFailedError creates an activity create/update error.
func NewActivityUpsertFailedError(activityID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeActivityUpsertFailed,
		Message:   "Failed to create or update activity",
		Details:   fmt.Sprintf("activityId: %s, error: %v", activityID, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkItemSubmitFailedError creates a work item submission error.
func NewWorkItemSubmitFailedError(activityID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkItemSubmitFailed,
		Message:   "Failed to submit work item",
		Details:   fmt.Sprintf("activityId: %s, error: %v", activityID, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkItemArgumentInvalidError is a local precondition failure on work item arguments.
func NewWorkItemArgumentInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkItemArgumentInvalid,
		Message:   "Invalid work item argument",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDefinitionInvalidError is returned when an activity definition fails schema validation.
func NewDefinitionInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDefinitionInvalid,
		Message:   "Activity definition failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkItemFailedError reports a terminal status other than success.
func NewWorkItemFailedError(workItemID, status, report string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkItemFailed,
		Message:   "Work item finished without success",
		Details:   fmt.Sprintf("workItemId: %s, status: %s", workItemID, status),
		Retryable: false,
		Metadata: map[string]interface{}{
			"workItemId": workItemID,
			"status":     status,
			"report":     report,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkItemPollTimeoutError is returned when the poll policy is exhausted.
func NewWorkItemPollTimeoutError(workItemID string, attempts int, elapsed time.Duration, lastStatus string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkItemPollTimeout,
		Message:   "Work item did not reach a terminal status in time",
		Details:   fmt.Sprintf("workItemId: %s, attempts: %d, elapsed: %s, lastStatus: %s", workItemID, attempts, elapsed.Round(time.Millisecond), lastStatus),
		Retryable: false,
		Metadata: map[string]interface{}{
			"workItemId": workItemID,
			"attempts":   attempts,
			"lastStatus": lastStatus,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewDownloadPreconditionError rejects a download before any request is made.
func NewDownloadPreconditionError(localPath string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDownloadPrecondition,
		Message:   "Download URL is empty",
		Details:   fmt.Sprintf("localPath: %s", localPath),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDownloadFailedError creates a download error.
func NewDownloadFailedError(localPath string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDownloadFailed,
		Message:   "Failed to download result",
		Details:   fmt.Sprintf("localPath: %s, error: %v", localPath, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewHistoryWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeHistoryWriteFailed,
		Message:   "Failed to record run history",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   fmt.Sprintf("Failed to send %s notification", channel),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsTransientHTTPStatus returns true if the HTTP status code indicates a potentially transient error.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// AsStandard unwraps err to a *StandardError when one is in the chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeNetworkError, ErrCodeDownloadFailed, ErrCodeHistoryWriteFailed, ErrCodeNotificationSendFailed:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a StandardError that is marked retryable
// or carries a code that is always worth another attempt.
func IsRetryable(err error) bool {
	stdErr, ok := AsStandard(err)
	return ok && (stdErr.Retryable || IsRetryableErrorCode(stdErr.Code))
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "CONFIG") || strings.HasPrefix(codeStr, "CREDENTIAL"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "AUTH") || strings.Contains(codeStr, "CREDENTIALS") || strings.Contains(codeStr, "UNAUTHORIZED"):
		return "AUTHENTICATION"
	case strings.Contains(codeStr, "PRECONDITION") || strings.Contains(codeStr, "INVALID"):
		return "PRECONDITION"
	case strings.HasPrefix(codeStr, "WORKITEM_FAILED") || strings.Contains(codeStr, "POLL"):
		return "REMOTE_JOB"
	case strings.Contains(codeStr, "NETWORK") || strings.Contains(codeStr, "API") || strings.Contains(codeStr, "DOWNLOAD") ||
		strings.Contains(codeStr, "UPSERT") || strings.Contains(codeStr, "SUBMIT") || strings.Contains(codeStr, "STORAGE"):
		return "REMOTE_SERVICE"
	default:
		return "OTHER"
	}
}
