package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownMode       = errors.New("unknown mode")
	ErrEmptyInstruction  = errors.New("instruction is required")
	ErrInstructionLength = errors.New("instruction too long")
	ErrTemplateRequired  = errors.New("template_guided mode requires a template id")
	ErrTooManyImages     = errors.New("too many input images")
	ErrEmptyImage        = errors.New("input image has neither url nor data")
	ErrAspectRatio       = errors.New("unsupported aspect ratio")
)

// BackendErrorKind classifies generation backend failures.
type BackendErrorKind string

const (
	BackendAuth          BackendErrorKind = "auth"
	BackendRateLimit     BackendErrorKind = "rate_limit"
	BackendContentPolicy BackendErrorKind = "content_policy"
	BackendTimeout       BackendErrorKind = "timeout"
	BackendUnknown       BackendErrorKind = "unknown"
)

// BackendError is a classified generation backend failure. Err keeps the
// provider detail for logs and must not be shown to end users.
type BackendError struct {
	Kind     BackendErrorKind
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return "generation backend " + string(e.Kind)
	}
	return "generation backend " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *BackendError) Unwrap() error { return e.Err }
