package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra/geoip"
	"studio/internal/pipeline"
)

// Runner executes one generation request synchronously.
type Runner interface {
	Run(ctx context.Context, req domain.GenerationRequest) (*pipeline.Outcome, error)
}

// App carries the dependencies shared by every handler.
type App struct {
	Pipeline Runner
	Jobs     domain.JobRepository
	Records  domain.RecordReader
	Geo      geoip.CountryResolver
	Logger   zerolog.Logger
	// MaxBodyBytes caps request bodies; zero uses defaultMaxBody.
	MaxBodyBytes   int64
	MaxInputImages int
}

const defaultMaxBody = 16 << 20

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code        string                    `json:"code"`
	Message     string                    `json:"message"`
	Suggestions []string                  `json:"suggestions,omitempty"`
	Gate        *domain.QualityGateResult `json:"gate,omitempty"`
}

type errorResponse struct {
	Error           errorBody `json:"error"`
	RequestID       string    `json:"request_id,omitempty"`
	StagesCompleted []string  `json:"stages_completed,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errorBody{Code: errCode, Message: message}})
}

// currentUserID reads the identity forwarded by the auth gateway.
func (a *App) currentUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
