package session

import (
	"errors"
)

// Start failure kinds. A *StartError matches exactly one of them with errors.Is.
var (
	ErrAlreadyRunning     = errors.New("session already running")
	ErrCaptureUnavailable = errors.New("capture unavailable")
	ErrEncoderInitFailed  = errors.New("encoder init failed")
	ErrListenFailed       = errors.New("listen failed")
)

// StartError is returned by Start. Kind is one of the Err* sentinels above;
// Err is the underlying cause, if any.
type StartError struct {
	Kind error
	Err  error
}

func (e *StartError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StartError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// reason is the metrics label for a start failure kind.
func reason(kind error) string {
	switch kind {
	case ErrAlreadyRunning:
		return "already_running"
	case ErrCaptureUnavailable:
		return "capture_unavailable"
	case ErrEncoderInitFailed:
		return "encoder_init_failed"
	case ErrListenFailed:
		return "listen_failed"
	default:
		return "unknown"
	}
}
