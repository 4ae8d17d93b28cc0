package handlers

import (
	"errors"
	"net/http"

	"studio/internal/domain"
	"studio/internal/pipeline"
)

var codeStatus = map[string]int{
	pipeline.CodeInvalidRequest:   http.StatusBadRequest,
	pipeline.CodeNeedsRefinement:  http.StatusUnprocessableEntity,
	pipeline.CodeContentPolicy:    http.StatusBadRequest,
	pipeline.CodeBackendBusy:      http.StatusTooManyRequests,
	pipeline.CodeBackendTimeout:   http.StatusGatewayTimeout,
	pipeline.CodeBackendUnavail:   http.StatusServiceUnavailable,
	pipeline.CodeBackendError:     http.StatusBadGateway,
	pipeline.CodeInternal:         http.StatusInternalServerError,
	pipeline.CodeRequestCancelled: http.StatusRequestTimeout,
}

// StatusFor maps a pipeline error code to its HTTP status.
func StatusFor(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (a *App) pipelineError(w http.ResponseWriter, out *pipeline.Outcome, err error) {
	code := pipeline.ErrorCode(err)
	resp := errorResponse{Error: errorBody{Code: code, Message: pipeline.PublicMessage(err)}}
	if out != nil {
		resp.RequestID = out.RequestID
		resp.StagesCompleted = out.StagesCompleted
	}
	var blocked *pipeline.GateBlockedError
	if errors.As(err, &blocked) {
		gate := blocked.Result
		resp.Error.Suggestions = blocked.Suggestions()
		resp.Error.Gate = &gate
	}

	evt := a.Logger.Warn()
	if StatusFor(code) >= http.StatusInternalServerError {
		evt = a.Logger.Error()
	}
	var backend *domain.BackendError
	if errors.As(err, &backend) {
		evt = evt.Str("provider", backend.Provider).Str("kind", string(backend.Kind))
	}
	evt.Err(err).Str("code", code).Str("request_id", resp.RequestID).Msg("http: generation failed")

	a.json(w, StatusFor(code), resp)
}
