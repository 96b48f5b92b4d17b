package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/examlens/constants"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotAvailable = errors.New("result not yet available")
	ErrStorage      = errors.New("storage error")
	ErrQueueFull    = errors.New("queue full")
	ErrQueueClosed  = errors.New("queue closed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ExtractionError means the document could not be opened, enumerated or decoded.
type ExtractionError struct {
	Reason string // e.g. "corrupt", "zero_pages", "page_decode", "unsupported"
	Page   int    // 1-based; 0 when not page specific
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := "extraction failed: " + e.Reason
	if e.Page > 0 {
		msg += fmt.Sprintf(" (page %d)", e.Page)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TransportError means the inference backend was unreachable, answered with a
// non-success status or did not answer in time. Status is 0 when no response
// was received.
type TransportError struct {
	Status    int
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("inference backend status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("inference backend unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError classifies err. Deadline and network failures are retryable,
// as are 429 and 5xx statuses.
func NewTransportError(statusCode int, err error) *TransportError {
	retry := statusCode == 0 || statusCode == 429 || statusCode >= 500
	if errors.Is(err, context.Canceled) {
		retry = false
	}
	return &TransportError{Status: statusCode, Retryable: retry, Err: err}
}

// Invariant names carried by SchemaViolation.
const (
	InvariantParse            = "parse"
	InvariantRoot             = "root"
	InvariantCategoryCount    = "category_count"
	InvariantDuplicate        = "duplicate_category"
	InvariantMissingField     = "missing_field"
	InvariantEmptyField       = "empty_field"
	InvariantFieldType        = "field_type"
	InvariantSummaryLength    = "summary_length"
	InvariantGenericName      = "generic_category_name"
	InvariantQuestionCoverage = "question_coverage"
	InvariantSchema           = "schema"
)

// SchemaViolation means the backend answered but the answer breaks the result contract.
type SchemaViolation struct {
	Invariant string
	Category  string
	Detail    string
}

func (e *SchemaViolation) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("schema violation [%s] category %q: %s", e.Invariant, e.Category, e.Detail)
	}
	return fmt.Sprintf("schema violation [%s]: %s", e.Invariant, e.Detail)
}

// StageOf maps a pipeline error to the stage recorded in an error record.
func StageOf(err error) constants.Stage {
	var ee *ExtractionError
	var te *TransportError
	var sv *SchemaViolation
	switch {
	case errors.As(err, &ee):
		return constants.StageExtraction
	case errors.As(err, &te):
		return constants.StageInference
	case errors.As(err, &sv):
		return constants.StageValidation
	default:
		return constants.StageTransport
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}

// ToGRPCError maps application errors onto gRPC status codes.
func ToGRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotAvailable), errors.Is(err, ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, ErrInvalidInput):
		return InvalidArgumentError(err.Error())
	case errors.Is(err, ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return InternalError(err.Error())
	}
}
