package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes into the broad classes clients react to.
type Kind string

const (
	KindInput          Kind = "INPUT"
	KindAuthorization  Kind = "AUTHORIZATION"
	KindSession        Kind = "SESSION"
	KindVerification   Kind = "VERIFICATION"
	KindConflict       Kind = "CONFLICT"
	KindInfrastructure Kind = "INFRASTRUCTURE"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Status    int                    `json:"status"`
	Kind      Kind                   `json:"kind,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Err       error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so clones compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Kind: kindForStatus(status)}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err, Kind: kindForStatus(status), Retryable: status >= http.StatusInternalServerError}
}

func newKind(kind Kind, code string, status int, message string, retryable bool) *Error {
	return &Error{Code: code, Status: status, Message: message, Kind: kind, Retryable: retryable}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = newKind(KindAuthorization, "FORBIDDEN", http.StatusForbidden, "forbidden", false)
	ErrUnauthorized       = newKind(KindAuthorization, "UNAUTHORIZED", http.StatusUnauthorized, "unauthorized", false)
	ErrConflict           = newKind(KindConflict, "CONFLICT", http.StatusConflict, "conflict", false)
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = newKind(KindInput, "VALIDATION_ERROR", http.StatusBadRequest, "validation failed", false)
	ErrInternal           = newKind(KindInfrastructure, "INTERNAL_ERROR", http.StatusInternalServerError, "internal server error", true)
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrRateLimited        = newKind(KindInput, "RATE_LIMITED", http.StatusTooManyRequests, "too many requests", true)
)

// Attendance domain errors.
var (
	ErrSubjectNotAssigned   = newKind(KindAuthorization, "SUBJECT_NOT_ASSIGNED", http.StatusForbidden, "subject is not assigned to teacher", false)
	ErrNotOwner             = newKind(KindAuthorization, "NOT_OWNER", http.StatusForbidden, "session belongs to another teacher", false)
	ErrSessionAlreadyActive = newKind(KindSession, "SESSION_ALREADY_ACTIVE", http.StatusConflict, "teacher already has an active session", false)
	ErrInvalidSession       = newKind(KindSession, "INVALID_SESSION", http.StatusNotFound, "session not found", false)
	ErrSessionEnded         = newKind(KindSession, "SESSION_ENDED", http.StatusGone, "session has ended", false)
	ErrTokenMismatch        = newKind(KindSession, "TOKEN_MISMATCH", http.StatusConflict, "qr token does not match session", false)
	ErrNoTargetSession      = newKind(KindSession, "NO_TARGET_SESSION", http.StatusNotFound, "no session available for override", false)
	ErrStageOrderViolation  = newKind(KindInput, "STAGE_ORDER_VIOLATION", http.StatusConflict, "verification stage out of order", false)
	ErrGeofenceViolation    = newKind(KindVerification, "GEOFENCE_VIOLATION", http.StatusUnprocessableEntity, "outside classroom geofence", true)
	ErrFaceMismatch         = newKind(KindVerification, "FACE_MISMATCH", http.StatusUnprocessableEntity, "face does not match enrolled template", true)
	ErrNoEnrolledTemplate   = newKind(KindVerification, "NO_ENROLLED_TEMPLATE", http.StatusPreconditionFailed, "no enrolled face template", false)
	ErrFaceEngineDown       = newKind(KindInfrastructure, "FACE_ENGINE_UNAVAILABLE", http.StatusServiceUnavailable, "face similarity engine unavailable", true)
	ErrTemplateStoreDown    = newKind(KindInfrastructure, "TEMPLATE_STORE_UNAVAILABLE", http.StatusServiceUnavailable, "face template store unavailable", true)
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	if err.Details != nil {
		clone.Details = make(map[string]interface{}, len(err.Details))
		for k, v := range err.Details {
			clone.Details[k] = v
		}
	}
	return &clone
}

// WithDetails returns a copy carrying extra machine readable fields.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	clone := Clone(err, "")
	if clone == nil {
		return nil
	}
	if clone.Details == nil {
		clone.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		clone.Details[k] = v
	}
	return clone
}

// WrapAs keeps the identity of a predefined error while recording its cause.
func WrapAs(base *Error, cause error) *Error {
	clone := Clone(base, "")
	if clone == nil {
		return nil
	}
	clone.Err = cause
	return clone
}

func kindForStatus(status int) Kind {
	switch {
	case status >= http.StatusInternalServerError:
		return KindInfrastructure
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusConflict:
		return KindConflict
	default:
		return KindInput
	}
}
