package models

// APIError represents a standardized error response format for the API.
// @Description APIError represents a standardized error response format, including an application-specific error code, a human-readable message, and optional details.
type APIError struct {
	Code    string      `json:"code"`              // Application-specific error code (e.g., "NOT_FOUND", "VALIDATION_ERROR")
	Message string      `json:"message"`           // Human-readable message describing the error
	Details interface{} `json:"details,omitempty"` // Optional field for additional error details
}

// Predefined application-specific error codes
const (
	// Generic Errors
	ErrorCodeInternalServerError = "INTERNAL_SERVER_ERROR"
	ErrorCodeUnknown             = "UNKNOWN_ERROR"

	// Input Validation & Data Errors
	ErrorCodeValidation       = "VALIDATION_ERROR"
	ErrorCodeInvalidJSON      = "INVALID_JSON"
	ErrorCodeInvalidIDFormat  = "INVALID_ID_FORMAT"
	ErrorCodeInvalidEnumValue = "INVALID_ENUM_VALUE"
	ErrorCodeMissingTenant    = "MISSING_TENANT"

	// Resource Specific Errors
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeRecordNotFound     = "SOURCE_RECORD_NOT_FOUND"
	ErrorCodeSuggestionNotFound = "SUGGESTION_NOT_FOUND"
	ErrorCodeConnectionNotFound = "CONNECTION_NOT_FOUND"
	ErrorCodeSyncRunNotFound    = "SYNC_RUN_NOT_FOUND"

	// Business Logic / State Errors
	ErrorCodeConflict          = "CONFLICT_ERROR"
	ErrorCodeReasonRequired    = "REASON_CODE_REQUIRED"
	ErrorCodeSuggestionClosed  = "SUGGESTION_ALREADY_DECIDED"
	ErrorCodeInvalidAction     = "INVALID_ACTION"
	ErrorCodeNotProcessable    = "RECORD_NOT_PROCESSABLE"
	ErrorCodeMaterialization   = "MATERIALIZATION_ERROR"
)
