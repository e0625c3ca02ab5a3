package pipeline

import "errors"

// Sentinel errors returned by the pipeline services. Callers must be able to
// tell expected absence apart from real failure, so "not found" is a distinct
// variant rather than a wrapped storage error.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrReasonRequired       = errors.New("a reason code is required to close a suggestion")
	ErrSuggestionClosed     = errors.New("suggestion has already been decided")
	ErrInvalidAction        = errors.New("action is not valid for this suggestion type")
	ErrRecordNotProcessable = errors.New("source record is not in a processable status")
	ErrInvalidEntityType    = errors.New("unknown entity type")
	ErrInvalidSource        = errors.New("unknown source system")
)
