package pipeline

import (
	"context"
	"errors"
	"fmt"

	"studio/internal/domain"
)

// Stable error codes returned to callers.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeNeedsRefinement  = "prompt_needs_refinement"
	CodeContentPolicy    = "content_policy_violation"
	CodeBackendBusy      = "backend_busy"
	CodeBackendTimeout   = "backend_timeout"
	CodeBackendUnavail   = "backend_unavailable"
	CodeBackendError     = "backend_error"
	CodeInternal         = "internal"
	CodeRequestCancelled = "request_canceled"
)

// ValidationError reports a request rejected before any stage ran.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Code() string { return CodeInvalidRequest }

func (e *ValidationError) PublicMessage() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

// GateBlockedError stops a run whose instruction scored below the block threshold.
type GateBlockedError struct {
	Result domain.QualityGateResult
}

func (e *GateBlockedError) Error() string {
	return fmt.Sprintf("quality gate blocked request (score %.1f)", e.Result.BlendedScore)
}

func (e *GateBlockedError) Code() string { return CodeNeedsRefinement }

func (e *GateBlockedError) PublicMessage() string {
	return "Your request needs a little more detail before we can generate it."
}

// Suggestions returns the improvement hints attached to the verdict.
func (e *GateBlockedError) Suggestions() []string {
	return e.Result.Suggestions
}

// PersistenceError means the artifact was produced but could not be saved.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist generation: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Code() string { return CodeInternal }

func (e *PersistenceError) PublicMessage() string {
	return "The image could not be saved. Please try again later."
}

// CanceledError is returned when the caller gave up before the backend call.
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string {
	return "request canceled: " + e.Err.Error()
}

func (e *CanceledError) Unwrap() error { return e.Err }

func (e *CanceledError) Code() string { return CodeRequestCancelled }

func (e *CanceledError) PublicMessage() string {
	return "The request was canceled."
}

// ContextProviderError records a degraded enrichment stage. It is logged,
// never returned from Run.
type ContextProviderError struct {
	Stage string
	Err   error
}

func (e *ContextProviderError) Error() string {
	return fmt.Sprintf("enrich %s: %v", e.Stage, e.Err)
}

func (e *ContextProviderError) Unwrap() error { return e.Err }

var backendMessages = map[domain.BackendErrorKind]struct {
	code    string
	message string
}{
	domain.BackendAuth:          {CodeBackendUnavail, "Image generation is temporarily unavailable."},
	domain.BackendRateLimit:     {CodeBackendBusy, "Image generation is busy. Please retry shortly."},
	domain.BackendContentPolicy: {CodeContentPolicy, "The request was rejected by the content policy."},
	domain.BackendTimeout:       {CodeBackendTimeout, "Image generation took too long. Please retry."},
	domain.BackendUnknown:       {CodeBackendError, "Image generation failed. Please retry."},
}

// ErrorCode returns the stable code for any error returned by Run.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	var backend *domain.BackendError
	if errors.As(err, &backend) {
		if m, ok := backendMessages[backend.Kind]; ok {
			return m.code
		}
		return CodeBackendError
	}
	if errors.Is(err, context.Canceled) {
		return CodeRequestCancelled
	}
	return CodeInternal
}

// PublicMessage returns a caller-safe description that carries no provider detail.
func PublicMessage(err error) string {
	var public interface{ PublicMessage() string }
	if errors.As(err, &public) {
		return public.PublicMessage()
	}
	var backend *domain.BackendError
	if errors.As(err, &backend) {
		if m, ok := backendMessages[backend.Kind]; ok {
			return m.message
		}
		return backendMessages[domain.BackendUnknown].message
	}
	return "Something went wrong. Please try again later."
}

// MessageForCode returns the public message for a stored error code, for
// callers that only kept the code (queued requests).
func MessageForCode(code string) string {
	switch code {
	case CodeInvalidRequest:
		return "The request is invalid."
	case CodeNeedsRefinement:
		return (&GateBlockedError{}).PublicMessage()
	case CodeInternal:
		return (&PersistenceError{}).PublicMessage()
	case CodeRequestCancelled:
		return (&CanceledError{}).PublicMessage()
	}
	for _, m := range backendMessages {
		if m.code == code {
			return m.message
		}
	}
	return PublicMessage(nil)
}
