package attendance

import "fmt"

// Kind tags a validation failure. Every failed submission or lifecycle call
// maps to exactly one kind; none of them is fatal to the process.
type Kind string

const (
	KindSessionInactive     Kind = "session_inactive"
	KindDeviceLocked        Kind = "device_locked"
	KindInvalidKey          Kind = "invalid_key"
	KindFaceCaptureFailed   Kind = "face_capture_failed"
	KindLocationUnavailable Kind = "location_unavailable"
	KindOutOfRange          Kind = "out_of_range"
	KindDuplicateSubmission Kind = "duplicate_submission"
)

// ValidationError is the tagged, user-facing outcome of a rejected attempt.
type ValidationError struct {
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is matches two validation errors by kind so callers can use errors.Is
// with the exported sentinels below.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

func failf(kind Kind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is checks in callers and tests.
var (
	ErrSessionInactive     = &ValidationError{Kind: KindSessionInactive}
	ErrDeviceLocked        = &ValidationError{Kind: KindDeviceLocked}
	ErrInvalidKey          = &ValidationError{Kind: KindInvalidKey}
	ErrFaceCaptureFailed   = &ValidationError{Kind: KindFaceCaptureFailed}
	ErrLocationUnavailable = &ValidationError{Kind: KindLocationUnavailable}
	ErrOutOfRange          = &ValidationError{Kind: KindOutOfRange}
	ErrDuplicateSubmission = &ValidationError{Kind: KindDuplicateSubmission}
)
