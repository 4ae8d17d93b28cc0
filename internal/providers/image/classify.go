package image

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"studio/internal/domain"
	"studio/internal/providers/qwen"
)

var contentPolicyCodes = map[string]struct{}{
	"datainspectionfailed":     {},
	"data_inspection_failed":   {},
	"contentmoderationfailed":  {},
	"ipinfringementsuspect":    {},
	"inappropriatecontent":     {},
	"responsible_ai_violation": {},
}

// Classify maps a backend error onto the fixed failure taxonomy.
func Classify(err error) domain.BackendErrorKind {
	if err == nil {
		return ""
	}
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Kind
	}
	if errors.Is(err, qwen.ErrMissingAPIKey) {
		return domain.BackendAuth
	}
	if errors.Is(err, qwen.ErrThrottled) {
		return domain.BackendRateLimit
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.BackendTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.BackendTimeout
	}
	var apiErr *qwen.APIError
	if errors.As(err, &apiErr) {
		code := strings.ToLower(strings.TrimSpace(apiErr.Code))
		if _, ok := contentPolicyCodes[code]; ok {
			return domain.BackendContentPolicy
		}
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden,
			code == "invalidapikey", code == "accessdenied":
			return domain.BackendAuth
		case apiErr.Status == http.StatusTooManyRequests, strings.HasPrefix(code, "throttling"):
			return domain.BackendRateLimit
		case apiErr.Status == http.StatusGatewayTimeout, code == "requesttimeout":
			return domain.BackendTimeout
		}
	}
	return domain.BackendUnknown
}

// classified wraps err as a *domain.BackendError unless it already is one.
func classified(provider string, err error) error {
	if err == nil {
		return nil
	}
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) {
		return err
	}
	return &domain.BackendError{Kind: Classify(err), Provider: provider, Err: err}
}

func isTransient(err error) bool {
	var apiErr *qwen.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status >= 500 && apiErr.Status != http.StatusGatewayTimeout {
			return true
		}
		code := strings.ToLower(apiErr.Code)
		return strings.Contains(code, "internalerror")
	}
	return false
}
