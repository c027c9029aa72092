// Package errors provides standardized error handling for the intake flow.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Contact / evidence validation
	ErrCodeContactValidationFailed ErrorCode = "CONTACT_VALIDATION_FAILED"
	ErrCodeUnsupportedMediaType    ErrorCode = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeEvidenceTooLarge        ErrorCode = "EVIDENCE_TOO_LARGE"

	// Session lifecycle
	ErrCodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSubmissionInFlight ErrorCode = "SUBMISSION_IN_FLIGHT"

	// Storage / workflow decision round trip
	ErrCodeStorageUploadFailed      ErrorCode = "STORAGE_UPLOAD_FAILED"
	ErrCodeDecisionRequestFailed    ErrorCode = "DECISION_REQUEST_FAILED"
	ErrCodeDecisionTimeout          ErrorCode = "DECISION_TIMEOUT"
	ErrCodeDecisionContractViolated ErrorCode = "DECISION_CONTRACT_VIOLATED"

	// Voice / transcript boundary
	ErrCodeSignedURLFailed       ErrorCode = "SIGNED_URL_FAILED"
	ErrCodeConversationIDMissing ErrorCode = "CONVERSATION_ID_MISSING"
	ErrCodeTranscriptFetchFailed ErrorCode = "TRANSCRIPT_FETCH_FAILED"
	ErrCodeSheetPersistFailed    ErrorCode = "SHEET_PERSIST_FAILED"
	ErrCodeSheetRowNotFound      ErrorCode = "SHEET_ROW_NOT_FOUND"
	ErrCodeGeocodeLookupFailed   ErrorCode = "GEOCODE_LOOKUP_FAILED"

	// Configuration
	ErrCodeMissingConfiguration ErrorCode = "MISSING_CONFIGURATION"

	// Audit store
	ErrCodeAuditInsertFailed ErrorCode = "AUDIT_INSERT_FAILED"
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
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewContactValidationError creates a non-retryable field validation error.
func NewContactValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeContactValidationFailed,
		Message:   "Contact information failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnsupportedMediaTypeError creates a non-retryable MIME gate error.
func NewUnsupportedMediaTypeError(contentType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnsupportedMediaType,
		Message:   "Uploaded file is not an image",
		Details:   fmt.Sprintf("contentType: %s", contentType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEvidenceTooLargeError creates a non-retryable size limit error.
func NewEvidenceTooLargeError(size, limit int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeEvidenceTooLarge,
		Message:   "Uploaded file exceeds the size limit",
		Details:   fmt.Sprintf("size: %d, limit: %d", size, limit),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable session lookup error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Intake session not found or expired",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSubmissionInFlightError creates a non-retryable single-flight guard error.
func NewSubmissionInFlightError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubmissionInFlight,
		Message:   "A submission is already being processed for this session",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageUploadError creates a retryable object storage error.
func NewStorageUploadError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageUploadFailed,
		Message:   "Object storage upload failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDecisionRequestError creates a retryable workflow webhook error.
func NewDecisionRequestError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDecisionRequestFailed,
		Message:   "Workflow decision request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDecisionTimeoutError creates a retryable timeout error for the decision round trip.
func NewDecisionTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeDecisionTimeout,
		Message:   "The verification is taking longer than expected",
		Details:   "decision request exceeded the 120 second bound",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDecisionContractError creates a non-retryable response contract error.
func NewDecisionContractError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDecisionContractViolated,
		Message:   "Workflow decision response violated the contract",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSignedURLError creates a retryable signed URL exchange error.
func NewSignedURLError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSignedURLFailed,
		Message:   "Signed URL exchange failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewConversationIDMissingError creates a non-retryable input error.
func NewConversationIDMissingError() *StandardError {
	return &StandardError{
		Code:      ErrCodeConversationIDMissing,
		Message:   "Conversation ID is required",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTranscriptFetchError creates a retryable upstream transcript error.
func NewTranscriptFetchError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTranscriptFetchFailed,
		Message:   "Failed to fetch conversation transcript",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSheetPersistError creates a retryable spreadsheet store error.
func NewSheetPersistError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSheetPersistFailed,
		Message:   "Failed to persist transcript to the spreadsheet store",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSheetRowNotFoundError creates a non-retryable patch-mode lookup error.
func NewSheetRowNotFoundError(claimID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSheetRowNotFound,
		Message:   "No spreadsheet row matches the claim identifier",
		Details:   fmt.Sprintf("claimId: %s", claimID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGeocodeLookupError creates a retryable reverse geocoding error.
func NewGeocodeLookupError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGeocodeLookupFailed,
		Message:   "Reverse geocoding lookup failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingConfigurationError creates a non-retryable server configuration error.
func NewMissingConfigurationError(what string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingConfiguration,
		Message:   fmt.Sprintf("%s not configured", what),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuditInsertError creates a retryable audit store error.
func NewAuditInsertError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditInsertFailed,
		Message:   "Audit record insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Status Mapping
// ==========================

// HTTPStatusMapping maps internal error codes to the status returned at the
// HTTP boundary. The transcript and signed-url handlers keep the original
// blanket-500 contract; those overrides live in the handlers themselves.
var HTTPStatusMapping = map[ErrorCode]int{
	ErrCodeContactValidationFailed:  http.StatusUnprocessableEntity,
	ErrCodeUnsupportedMediaType:     http.StatusUnsupportedMediaType,
	ErrCodeEvidenceTooLarge:         http.StatusRequestEntityTooLarge,
	ErrCodeSessionNotFound:          http.StatusNotFound,
	ErrCodeSubmissionInFlight:       http.StatusConflict,
	ErrCodeStorageUploadFailed:      http.StatusBadGateway,
	ErrCodeDecisionRequestFailed:    http.StatusBadGateway,
	ErrCodeDecisionTimeout:          http.StatusGatewayTimeout,
	ErrCodeDecisionContractViolated: http.StatusBadGateway,
	ErrCodeSignedURLFailed:          http.StatusInternalServerError,
	ErrCodeConversationIDMissing:    http.StatusInternalServerError,
	ErrCodeTranscriptFetchFailed:    http.StatusInternalServerError,
	ErrCodeSheetPersistFailed:       http.StatusInternalServerError,
	ErrCodeSheetRowNotFound:         http.StatusInternalServerError,
	ErrCodeGeocodeLookupFailed:      http.StatusBadGateway,
	ErrCodeMissingConfiguration:     http.StatusInternalServerError,
	ErrCodeAuditInsertFailed:        http.StatusInternalServerError,
}

// HTTPStatus returns the status code for an error code, defaulting to 500.
func HTTPStatus(code ErrorCode) int {
	if status, exists := HTTPStatusMapping[code]; exists {
		return status
	}
	return http.StatusInternalServerError
}

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeStorageUploadFailed,
		ErrCodeDecisionRequestFailed,
		ErrCodeDecisionTimeout,
		ErrCodeSignedURLFailed,
		ErrCodeTranscriptFetchFailed,
		ErrCodeSheetPersistFailed,
		ErrCodeGeocodeLookupFailed,
		ErrCodeAuditInsertFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "MEDIA") || strings.Contains(codeStr, "TOO_LARGE"):
		return "VALIDATION"
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "IN_FLIGHT"):
		return "SESSION"
	case strings.Contains(codeStr, "STORAGE"):
		return "STORAGE"
	case strings.Contains(codeStr, "DECISION"):
		return "DECISION"
	case strings.Contains(codeStr, "TRANSCRIPT") || strings.Contains(codeStr, "SIGNED_URL") || strings.Contains(codeStr, "CONVERSATION"):
		return "VOICE"
	case strings.Contains(codeStr, "SHEET"):
		return "SPREADSHEET"
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIG"
	default:
		return "OTHER"
	}
}
