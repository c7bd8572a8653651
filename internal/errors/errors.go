package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - contradictory or malformed selection options
	ErrorTypeConfig ErrorType = iota
	// Backend errors - clone failures, unreadable repositories, bad revisions
	ErrorTypeBackend
	// Decode errors - blob content that is not text
	ErrorTypeDecode
	// Analysis errors - the code analyzer could not process a file revision
	ErrorTypeAnalysis
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeBackend:
		return "BACKEND"
	case ErrorTypeDecode:
		return "DECODE"
	case ErrorTypeAnalysis:
		return "ANALYSIS"
	case ErrorTypeInternal:
		return "INTERNAL"
	}
	return "UNKNOWN"
}

// Severity decides whether mining continues
type Severity int

const (
	// SeverityLow - recovered locally, the value degrades to absent
	SeverityLow Severity = iota
	// SeverityMedium - surfaced to the caller, mining may continue
	SeverityMedium
	// SeverityHigh - ends the current repository
	SeverityHigh
	// SeverityCritical - nothing is mined
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// Error is the structured error returned across package boundaries
type Error struct {
	Type     ErrorType
	Severity Severity
	Message  string
	Cause    error
	Context  map[string]interface{}
}

// Sentinels usable as errors.Is targets; matching is by Type only.
var (
	ErrConfiguration = &Error{Type: ErrorTypeConfig}
	ErrBackend       = &Error{Type: ErrorTypeBackend}
	ErrDecode        = &Error{Type: ErrorTypeDecode}
	ErrAnalysis      = &Error{Type: ErrorTypeAnalysis}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair shown by DetailedString
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches any *Error of the same Type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Type == t.Type
}

// IsFatal reports whether the current repository must be abandoned
func (e *Error) IsFatal() bool {
	return e.Severity >= SeverityHigh
}

// DetailedString renders severity, type, cause and context on separate lines.
// Context keys are sorted.
func (e *Error) DetailedString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s\n", e.Severity, e.Type, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, "Caused by: %v\n", e.Cause)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, e.Context[k])
		}
	}
	return sb.String()
}

// New creates an error without a cause
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{Type: errType, Severity: severity, Message: message}
}

// Wrap attaches a type and severity to err. Wrap(nil, ...) is nil.
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: errType, Severity: severity, Message: message, Cause: err}
}

// Convenience constructors for common error types

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// BackendError wraps a repository backend failure; err may be nil
func BackendError(err error, message string) *Error {
	if err == nil {
		return New(ErrorTypeBackend, SeverityHigh, message)
	}
	return Wrap(err, ErrorTypeBackend, SeverityHigh, message)
}

// BackendErrorf wraps a repository backend failure with formatting
func BackendErrorf(err error, format string, args ...interface{}) *Error {
	return BackendError(err, fmt.Sprintf(format, args...))
}

// DecodeError creates a decode failure for undecodable blob content
func DecodeError(message string) *Error {
	return New(ErrorTypeDecode, SeverityLow, message)
}

// AnalysisError wraps a code analyzer failure
func AnalysisError(err error, message string) *Error {
	if err == nil {
		return New(ErrorTypeAnalysis, SeverityLow, message)
	}
	return Wrap(err, ErrorTypeAnalysis, SeverityLow, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal reports whether err, or an *Error it wraps, is fatal
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsFatal()
}

// GetSeverity returns the severity of the first *Error in err's chain.
// Foreign errors count as medium.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Severity
	}
	return SeverityMedium
}

// GetType returns the type of the first *Error in err's chain
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}
