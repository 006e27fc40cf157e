package domain

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrUnsupported        = errors.New("unsupported")
	ErrUpstream           = errors.New("upstream failure")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrGenerationTimedOut = errors.New("generation timed out")
	ErrStorage            = errors.New("storage failure")
	ErrTokenExpired       = errors.New("download link expired")
	ErrNotFound           = errors.New("not found")
)

// ValidationError carries a client-facing message while still matching
// ErrValidation through errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// UpstreamError records a collaborator failure. Status and Message come from
// the remote side and are safe to surface.
type UpstreamError struct {
	Service string
	Status  string
	Message string
	Kind    error
}

func (e *UpstreamError) Error() string {
	msg := e.Service
	if e.Status != "" {
		msg += ": status " + e.Status
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	return ErrUpstream
}
