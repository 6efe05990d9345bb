package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a failure for the HTTP boundary.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a missing resource. Lookups report absence as a normal result instead.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeValidation indicates missing or malformed input.
	ErrCodeValidation ErrorCode = "VALIDATION"
	// ErrCodeConflict indicates a uniqueness violation, e.g. an invoice already recorded.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeUpstream indicates an AI provider call failed.
	ErrCodeUpstream ErrorCode = "UPSTREAM_PROVIDER"
	// ErrCodeStorage indicates a database operation failed.
	ErrCodeStorage ErrorCode = "STORAGE"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageExtract          Stage = "extract"
	StageVerify           Stage = "verify"
	StagePersist          Stage = "persist"
	StagePrepareVector    Stage = "db_prepare_vector"
	StageIndexEmbeddings  Stage = "db_index_embeddings"
	StageEmbedQuery       Stage = "embed_query"
	StageVectorSearch     Stage = "db_vector_search"
	StageLLMGenerate      Stage = "llm_generate"
	StageValidateQuestion Stage = "validate_question"
)

// AppError is a failure tagged with a code and the stage it happened in.
type AppError struct {
	Code    ErrorCode
	Stage   Stage
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Code, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Code, e.Stage, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Validation creates a validation error.
func Validation(stage Stage, msg string) *AppError {
	return &AppError{Code: ErrCodeValidation, Stage: stage, Message: msg}
}

// Conflict creates a conflict error.
func Conflict(stage Stage, msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeConflict, Stage: stage, Message: msg, Cause: cause}
}

// Upstream creates an upstream provider error.
func Upstream(stage Stage, msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeUpstream, Stage: stage, Message: msg, Cause: cause}
}

// Storage creates a storage error.
func Storage(stage Stage, msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeStorage, Stage: stage, Message: msg, Cause: cause}
}

// As extracts the AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if appErr, ok := As(err); ok {
		return appErr.Code == code
	}
	return false
}

// StageOf returns the stage recorded on err, or "" if err is untagged.
func StageOf(err error) Stage {
	if appErr, ok := As(err); ok {
		return appErr.Stage
	}
	return ""
}

// HTTPStatus maps an error code to an HTTP status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
