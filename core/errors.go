package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind names a class of failure. Kinds drive retry and recovery
// decisions; they are not Go types.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindTimeout          ErrorKind = "timeout"
	KindResource         ErrorKind = "resource"
	KindAuthentication   ErrorKind = "authentication"
	KindGenerationFailed ErrorKind = "generation_failed"
	KindExecutionFailed  ErrorKind = "execution_failed"
	KindParseFailed      ErrorKind = "parse_failed"
	KindCanceled         ErrorKind = "canceled"
	KindUnknown          ErrorKind = "unknown"
)

// RecoveryAction is a structured hint attached to failures.
type RecoveryAction string

const (
	RecoveryFixInput         RecoveryAction = "fix_input"
	RecoveryLargerTimeout    RecoveryAction = "retry_with_larger_timeout"
	RecoverySimplifyInput    RecoveryAction = "simplify_input"
	RecoveryCheckCredentials RecoveryAction = "check_credentials"
	RecoveryRephraseQuery    RecoveryAction = "rephrase_query"
	RecoveryReviseSQL        RecoveryAction = "revise_sql"
	RecoveryUseDefault       RecoveryAction = "use_default"
	RecoveryResubmit         RecoveryAction = "resubmit"
	RecoveryRetryOnce        RecoveryAction = "retry_once"
)

// Error is the structured error returned by specialists and the framework.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Detail  map[string]any
	Err     error
}

// NewError constructs an Error of the given kind.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Errorf constructs an Error with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a detail key/value and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = map[string]any{}
	}
	e.Detail[key] = value
	return e
}

// Wrap sets the underlying cause and returns the receiver.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Kind))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }

// Classify maps an arbitrary error onto the taxonomy. Typed errors keep their
// kind; context errors become timeout/canceled; otherwise message heuristics
// detect resource and credential failures.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if k := KindOf(err); k != "" {
		return k
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return KindTimeout
	case containsAny(msg, "quota", "rate limit", "out of memory", "resource exhausted", "too many requests", "429"):
		return KindResource
	case containsAny(msg, "api key", "apikey", "unauthorized", "forbidden", "authentication", "401", "403", "credential"):
		return KindAuthentication
	}
	return KindUnknown
}

// Retryable reports whether another attempt may succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindValidation, KindAuthentication, KindParseFailed, KindCanceled:
		return false
	}
	return true
}

// Recovery returns the recovery action suggested for the kind.
func (k ErrorKind) Recovery() RecoveryAction {
	switch k {
	case KindValidation:
		return RecoveryFixInput
	case KindTimeout:
		return RecoveryLargerTimeout
	case KindResource:
		return RecoverySimplifyInput
	case KindAuthentication:
		return RecoveryCheckCredentials
	case KindGenerationFailed:
		return RecoveryRephraseQuery
	case KindExecutionFailed:
		return RecoveryReviseSQL
	case KindParseFailed:
		return RecoveryUseDefault
	case KindCanceled:
		return RecoveryResubmit
	default:
		return RecoveryRetryOnce
	}
}

// FallbackMessage returns a human readable explanation for end users.
func (k ErrorKind) FallbackMessage() string {
	switch k {
	case KindValidation:
		return "The request could not be processed because the input is invalid. Please check that a dataset is loaded and the question refers to existing columns."
	case KindTimeout:
		return "The analysis took too long to complete. Please try again or narrow the question."
	case KindResource:
		return "The system ran out of capacity while processing the request. Please simplify the question or reduce the data size."
	case KindAuthentication:
		return "The analysis service could not authenticate with its model provider. Please check the configured credentials."
	case KindGenerationFailed:
		return "I could not generate an answer for this question. Please try rephrasing it."
	case KindExecutionFailed:
		return "The generated query could not be executed against the dataset. Please rephrase the question or refer to existing columns."
	case KindCanceled:
		return "The request was canceled before it completed."
	default:
		return "Something went wrong while analyzing the data. Please try again."
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
