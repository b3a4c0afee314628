// Package errors provides centralized error definitions and error handling utilities
// for filegate. It defines the failure kinds a facade operation can surface,
// error constructors with context wrapping, and error classification helpers.
//
// # Failure Kinds
//
// Every public facade operation fails with exactly one of:
//   - LockTimeoutError: the bounded in-process lock wait expired
//   - GlobalLockError: the non-blocking cross-process lock was contended
//   - IOError: the underlying byte stream failed (missing file, permissions, disk full)
//   - InterruptedError: the caller's context was cancelled while waiting for a lock
//
// Configuration and argument problems are reported as ValidationError.
//
// # Usage
//
// Checking errors:
//
//	// Check for sentinel errors
//	if errors.Is(err, errors.ErrGlobalLockUnavailable) { ... }
//
//	// Check for error types
//	var lockErr *errors.GlobalLockError
//	if errors.As(err, &lockErr) { fmt.Println(lockErr.Mode) }
//
//	// Use classification helpers
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Only GlobalLockError and LockTimeoutError are retryable. Contention on the
// cross-process lock is a normal condition in multi-process deployments and
// callers are expected to retry it with backoff. IOError is never retryable
// because its cause may not be transient.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
)

// LockMode names the side of a lock an operation was trying to take.
type LockMode string

const (
	// ModeRead is the in-process pessimistic read lock.
	ModeRead LockMode = "read"
	// ModeWrite is the in-process write lock.
	ModeWrite LockMode = "write"
	// ModeShared is the cross-process shared lock taken around reads.
	ModeShared LockMode = "shared"
	// ModeExclusive is the cross-process exclusive lock taken around writes.
	ModeExclusive LockMode = "exclusive"
)

// IOOp names the byte-stream operation that failed.
type IOOp string

const (
	// OpRead covers opening and reading the target file.
	OpRead IOOp = "read"
	// OpWrite covers opening, truncating and writing the target file.
	OpWrite IOOp = "write"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Lock-related sentinel errors
var (
	// ErrLockTimeout indicates that an in-process lock could not be acquired in time.
	ErrLockTimeout = New("could not acquire lock")
	// ErrGlobalLockUnavailable indicates that the cross-process lock is held elsewhere.
	ErrGlobalLockUnavailable = New("could not acquire global lock")
	// ErrInterrupted indicates that a lock wait was cancelled.
	ErrInterrupted = New("lock wait interrupted")
	// ErrGlobalLockUnsupported indicates that the handle cannot carry a native lock.
	ErrGlobalLockUnsupported = New("global lock not supported for handle")
)

// I/O-related sentinel errors
var (
	// ErrIOFailure indicates that reading or writing the target file failed.
	ErrIOFailure = New("file operation failed")
	// ErrNoFileReference indicates that no target file has been configured.
	ErrNoFileReference = New("no file reference set")
	// ErrUnknownEncoding indicates that a requested character encoding is not registered.
	ErrUnknownEncoding = New("unknown encoding")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// GateError is the base interface for all filegate errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type GateError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// Failure Kinds
// -----------------------------------------------------------------------------

// LockTimeoutError is returned when the bounded in-process lock wait expires.
//
// Example:
//
//	err := errors.NewLockTimeoutError(errors.ModeWrite, time.Second)
//	fmt.Println(err) // "could not acquire write lock (timeout: 1s)"
type LockTimeoutError struct {
	baseError
	Mode    LockMode
	Timeout time.Duration
}

// NewLockTimeoutError creates a new LockTimeoutError.
func NewLockTimeoutError(mode LockMode, timeout time.Duration) *LockTimeoutError {
	return &LockTimeoutError{
		baseError: baseError{
			message:   fmt.Sprintf("could not acquire %s lock", mode),
			severity:  SeverityWarning,
			retryable: true,
		},
		Mode:    mode,
		Timeout: timeout,
	}
}

// Error returns the formatted error message.
func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%s (timeout: %s)", e.message, e.Timeout)
}

// Is checks if this error matches the target.
func (e *LockTimeoutError) Is(target error) bool {
	if _, ok := target.(*LockTimeoutError); ok {
		return true
	}
	return target == ErrLockTimeout
}

// GlobalLockError is returned when the non-blocking cross-process lock attempt
// finds the file locked by another process. It is retryable.
//
// Example:
//
//	err := errors.NewGlobalLockError(errors.ModeExclusive, "/tmp/data.txt")
//	fmt.Println(err) // "could not acquire global lock [mode=exclusive, path=/tmp/data.txt]"
type GlobalLockError struct {
	baseError
	Mode LockMode
	Path string
}

// NewGlobalLockError creates a new GlobalLockError.
func NewGlobalLockError(mode LockMode, path string) *GlobalLockError {
	return &GlobalLockError{
		baseError: baseError{
			message:   "could not acquire global lock",
			severity:  SeverityInfo,
			retryable: true,
		},
		Mode: mode,
		Path: path,
	}
}

// Shared reports whether the failed attempt was for the shared lock.
func (e *GlobalLockError) Shared() bool {
	return e.Mode == ModeShared
}

// Error returns the formatted error message.
func (e *GlobalLockError) Error() string {
	var parts []string
	if e.Mode != "" {
		parts = append(parts, fmt.Sprintf("mode=%s", e.Mode))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	if len(parts) == 0 {
		return e.message
	}
	return fmt.Sprintf("%s [%s]", e.message, strings.Join(parts, ", "))
}

// Is checks if this error matches the target.
func (e *GlobalLockError) Is(target error) bool {
	if _, ok := target.(*GlobalLockError); ok {
		return true
	}
	if target == ErrGlobalLockUnavailable {
		return true
	}
	return e.baseError.Is(target)
}

// IOError wraps a failure of the underlying byte stream.
//
// Example:
//
//	err := errors.NewIOError(errors.OpRead, "/tmp/data.txt", fs.ErrNotExist)
//	fmt.Println(err) // "could not read content [path=/tmp/data.txt]: file does not exist"
type IOError struct {
	baseError
	Op   IOOp
	Path string
}

// NewIOError creates a new IOError.
func NewIOError(op IOOp, path string, cause error) *IOError {
	message := "could not read content"
	if op == OpWrite {
		message = "could not save content"
	}
	return &IOError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: false,
		},
		Op:   op,
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *IOError) Error() string {
	prefix := e.message
	if e.Path != "" {
		prefix = fmt.Sprintf("%s [path=%s]", e.message, e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// Is checks if this error matches the target.
func (e *IOError) Is(target error) bool {
	if _, ok := target.(*IOError); ok {
		return true
	}
	if target == ErrIOFailure {
		return true
	}
	return e.baseError.Is(target)
}

// InterruptedError is returned when the caller's context is cancelled while
// the operation waits for an in-process lock. The cause is the context error,
// so errors.Is(err, context.Canceled) holds as well.
type InterruptedError struct {
	baseError
	Mode LockMode
}

// NewInterruptedError creates a new InterruptedError.
func NewInterruptedError(mode LockMode, cause error) *InterruptedError {
	return &InterruptedError{
		baseError: baseError{
			message:   fmt.Sprintf("interrupted while waiting for %s lock", mode),
			cause:     cause,
			severity:  SeverityWarning,
			retryable: false,
		},
		Mode: mode,
	}
}

// Is checks if this error matches the target.
func (e *InterruptedError) Is(target error) bool {
	if _, ok := target.(*InterruptedError); ok {
		return true
	}
	if target == ErrInterrupted {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("unknown lock backend")
//	err = err.WithField("facade.lock_backend").WithValue("nfs")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:   message,
			severity:  SeverityWarning,
			retryable: false,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
//
// Example:
//
//	for {
//	    err := gate.SaveContent(ctx, "1,", true, nil)
//	    if !errors.IsRetryable(err) {
//	        return err
//	    }
//	    time.Sleep(backoff)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var gateErr GateError
	if As(err, &gateErr) {
		return gateErr.IsRetryable()
	}

	return Is(err, ErrGlobalLockUnavailable) || Is(err, ErrLockTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement GateError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var gateErr GateError
	if As(err, &gateErr) {
		return gateErr.Severity()
	}

	return SeverityError
}

// IsContention returns true for the two "could not acquire" conditions:
// an in-process lock timeout or a contended cross-process lock.
func IsContention(err error) bool {
	return Is(err, ErrLockTimeout) || Is(err, ErrGlobalLockUnavailable)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike losing the type through string formatting, this preserves the
// GateError interface for errors.As.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
