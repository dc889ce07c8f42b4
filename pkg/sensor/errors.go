package sensor

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a sensor failure.
type Kind int

const (
	// Unknown is any failure the sensor could not classify. Retryable.
	Unknown Kind = iota
	// PermissionDenied is terminal: retrying cannot change a denied permission.
	PermissionDenied
	// Unavailable means no fix could be determined. Retryable.
	Unavailable
	// Timeout means the sensor did not answer in time. Retryable.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case Unavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt could succeed.
func (k Kind) Retryable() bool {
	return k != PermissionDenied
}

// Code returns the W3C GeolocationPositionError code for the kind (0 for Unknown).
func (k Kind) Code() int {
	switch k {
	case PermissionDenied:
		return 1
	case Unavailable:
		return 2
	case Timeout:
		return 3
	default:
		return 0
	}
}

// KindFromCode maps a W3C GeolocationPositionError code to a Kind.
func KindFromCode(code int) Kind {
	switch code {
	case 1:
		return PermissionDenied
	case 2:
		return Unavailable
	case 3:
		return Timeout
	default:
		return Unknown
	}
}

// ErrSuperseded is returned to a caller whose acquisition was replaced by a newer one.
var ErrSuperseded = errors.New("acquisition superseded")

// ErrStopped is returned by a sensor that has been shut down.
var ErrStopped = errors.New("sensor stopped")

// Error is a typed sensor failure.
type Error struct {
	Kind    Kind
	Attempt int
	Err     error
}

// NewError creates a sensor error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sensor: %s", e.Kind)
	}
	return fmt.Sprintf("sensor: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, classifying foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Unknown
}

// classify converts any error returned by a Sensor into a *Error.
func classify(err error, attempt int) *Error {
	var se *Error
	if errors.As(err, &se) {
		out := *se
		out.Attempt = attempt
		return &out
	}
	return &Error{Kind: KindOf(err), Attempt: attempt, Err: err}
}
