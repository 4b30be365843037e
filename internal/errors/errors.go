package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
)

// ErrorType classifies failures by how the caller should react
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeExternal   ErrorType = "external_api"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeData       ErrorType = "data_unavailable"
)

// AppError carries a type and code next to the wrapped cause
type AppError struct {
	Type     ErrorType
	Message  string
	Code     string
	Internal error
	Context  map[string]any
	Source   string // file:line that built the error
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Message, e.Code, e.Internal)
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.Code)
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

// Is matches another AppError by type and code, and anything else through the cause
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return errors.Is(e.Internal, target)
}

// WithContext attaches a key the error is logged with
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// LogFields returns slog key/value pairs, context keys sorted
func (e *AppError) LogFields() []any {
	fields := []any{"error_type", e.Type, "error_code", e.Code, "error_message", e.Message, "source", e.Source}
	if e.Internal != nil {
		fields = append(fields, "internal_error", e.Internal.Error())
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, k, e.Context[k])
	}
	return fields
}

func build(errorType ErrorType, code, message string, cause error) *AppError {
	// skip build and the constructor calling it
	_, file, line, _ := runtime.Caller(2)
	return &AppError{
		Type:     errorType,
		Code:     code,
		Message:  message,
		Internal: cause,
		Source:   fmt.Sprintf("%s:%d", filepath.Base(file), line),
	}
}

// New creates an AppError without a cause
func New(errorType ErrorType, code, message string) *AppError {
	return build(errorType, code, message, nil)
}

// Handler logs errors at a level chosen by their type
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// levels maps each error type to its log level and message; unlisted types log as errors
var levels = map[ErrorType]struct {
	level slog.Level
	msg   string
}{
	ErrorTypeValidation: {slog.LevelWarn, "Validation error"},
	ErrorTypePermission: {slog.LevelWarn, "Permission error"},
	ErrorTypeData:       {slog.LevelWarn, "Data unavailable"},
	ErrorTypeDatabase:   {slog.LevelError, "Database error"},
	ErrorTypeExternal:   {slog.LevelError, "External service error"},
	ErrorTypeTimeout:    {slog.LevelError, "Operation timed out"},
}

// Handle logs err; nil is ignored
func (h *Handler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		h.logger.ErrorContext(ctx, "Unhandled error", "error", err.Error())
		return
	}
	entry, ok := levels[appErr.Type]
	if !ok {
		entry.level, entry.msg = slog.LevelError, "Unknown error type"
	}
	h.logger.Log(ctx, entry.level, entry.msg, appErr.LogFields()...)
}

// Sentinels for errors.Is; they match any AppError with the same type and code
var (
	ErrUnknownRule       = New(ErrorTypeValidation, "UNKNOWN_RULE", "Unknown rule")
	ErrInvalidDuration   = New(ErrorTypeValidation, "INVALID_DURATION", "Invalid duration")
	ErrLedgerUnavailable = New(ErrorTypeDatabase, "LEDGER_UNAVAILABLE", "Alert ledger unavailable")
	ErrDataUnavailable   = New(ErrorTypeData, "DATA_UNAVAILABLE", "Window data unavailable")
	ErrUnauthorized      = New(ErrorTypePermission, "UNAUTHORIZED", "Unauthorized access")
	ErrTimeout           = New(ErrorTypeTimeout, "TIMEOUT", "Operation timed out")
)

func NewValidationError(message string) *AppError {
	return build(ErrorTypeValidation, "VALIDATION", message, nil)
}

func NewUnknownRuleError(rule string) *AppError {
	return build(ErrorTypeValidation, "UNKNOWN_RULE", fmt.Sprintf("unknown rule %q", rule), nil).
		WithContext("rule", rule)
}

func NewInvalidDurationError(message string) *AppError {
	return build(ErrorTypeValidation, "INVALID_DURATION", message, nil)
}

func NewDatabaseError(err error) *AppError {
	return build(ErrorTypeDatabase, "DB_ERROR", "Database operation failed", err)
}

// NewLedgerError marks a failure of the alert ledger; a tick cannot dedup safely without it
func NewLedgerError(err error, operation string) *AppError {
	return build(ErrorTypeDatabase, "LEDGER_UNAVAILABLE", fmt.Sprintf("ledger %s failed", operation), err).
		WithContext("operation", operation)
}

func NewDataUnavailableError(err error, rule string) *AppError {
	return build(ErrorTypeData, "DATA_UNAVAILABLE", "window read failed", err).
		WithContext("rule", rule)
}

func NewExternalAPIError(err error, api string) *AppError {
	return build(ErrorTypeExternal, "EXTERNAL_API", fmt.Sprintf("%s API error", api), err).
		WithContext("api", api)
}

func NewDispatchError(err error, channel string) *AppError {
	return build(ErrorTypeExternal, "DISPATCH_FAILED", fmt.Sprintf("%s dispatch failed", channel), err).
		WithContext("channel", channel)
}

func NewTimeoutError(err error, operation string) *AppError {
	return build(ErrorTypeTimeout, "TIMEOUT", fmt.Sprintf("%s timed out", operation), err).
		WithContext("operation", operation)
}

// IsValidation reports whether err carries a validation AppError
func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == ErrorTypeValidation
}

// IsLedger reports whether err carries a ledger AppError
func IsLedger(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}
