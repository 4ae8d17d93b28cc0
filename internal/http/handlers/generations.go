package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/middleware"
	"studio/internal/pipeline"
)

type generationRequest struct {
	Instruction string              `json:"instruction"`
	Images      []domain.InputImage `json:"images"`
	Mode        string              `json:"mode"`
	AspectRatio string              `json:"aspect_ratio"`
	ProductIDs  []string            `json:"product_ids"`
	TemplateID  string              `json:"template_id"`
	Recipe      *domain.Recipe      `json:"recipe"`
	Locale      string              `json:"locale"`
}

type artifactResponse struct {
	MIMEType    string `json:"mime_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	CostCredits int    `json:"cost_credits"`
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"data"`
}

type generationResponse struct {
	RequestID       string                    `json:"request_id"`
	RecordID        string                    `json:"record_id"`
	Artifact        artifactResponse          `json:"artifact"`
	Gate            *domain.QualityGateResult `json:"gate"`
	Critique        *domain.Critique          `json:"critique,omitempty"`
	StagesCompleted []string                  `json:"stages_completed"`
	Degraded        []string                  `json:"degraded,omitempty"`
}

type jobResponse struct {
	JobID     string          `json:"job_id"`
	Status    string          `json:"status"`
	RecordID  string          `json:"record_id,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// parseRequest turns the payload into a domain request. Only the mode is
// checked here; the pipeline validates the rest.
func (a *App) parseRequest(w http.ResponseWriter, r *http.Request) (domain.GenerationRequest, bool) {
	var body generationRequest
	if err := a.decode(w, r, &body); err != nil {
		a.error(w, http.StatusBadRequest, pipeline.CodeInvalidRequest, "invalid payload")
		return domain.GenerationRequest{}, false
	}
	mode, err := domain.ParseMode(body.Mode)
	if err != nil {
		a.error(w, http.StatusBadRequest, pipeline.CodeInvalidRequest, "mode: unknown mode")
		return domain.GenerationRequest{}, false
	}
	locale := strings.TrimSpace(body.Locale)
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	return domain.GenerationRequest{
		RequestID:   middleware.RequestIDFromContext(r.Context()),
		UserID:      a.currentUserID(r),
		Instruction: body.Instruction,
		Images:      body.Images,
		Mode:        mode,
		AspectRatio: body.AspectRatio,
		ProductIDs:  body.ProductIDs,
		TemplateID:  body.TemplateID,
		Recipe:      body.Recipe,
		Locale:      locale,
		Country:     middleware.CountryFromContext(r.Context()),
	}, true
}

// Generate runs the pipeline inline and returns the artifact.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	req, ok := a.parseRequest(w, r)
	if !ok {
		return
	}
	out, err := a.Pipeline.Run(r.Context(), req)
	if err != nil {
		a.pipelineError(w, out, err)
		return
	}
	a.json(w, http.StatusOK, generationResponse{
		RequestID: out.RequestID,
		RecordID:  out.RecordID,
		Artifact: artifactResponse{
			MIMEType:    out.Artifact.MIMEType,
			Width:       out.Artifact.Width,
			Height:      out.Artifact.Height,
			CostCredits: out.Artifact.CostCredits,
			URL:         out.Artifact.URL,
			Data:        out.Artifact.Data,
		},
		Gate:            out.Gate,
		Critique:        out.Critique,
		StagesCompleted: out.StagesCompleted,
		Degraded:        out.Degraded,
	})
}

// Enqueue stores the request for the worker. The mode and other fields are
// validated up front so callers see invalid payloads immediately.
func (a *App) Enqueue(w http.ResponseWriter, r *http.Request) {
	if a.Jobs == nil {
		a.error(w, http.StatusServiceUnavailable, pipeline.CodeBackendUnavail, "queue is not configured")
		return
	}
	req, ok := a.parseRequest(w, r)
	if !ok {
		return
	}
	if err := pipeline.Validate(req, a.MaxInputImages); err != nil {
		a.error(w, http.StatusBadRequest, pipeline.ErrorCode(err), pipeline.PublicMessage(err))
		return
	}
	jobID, err := a.Jobs.Enqueue(r.Context(), req.UserID, req)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: enqueue generation")
		a.error(w, http.StatusInternalServerError, pipeline.CodeInternal, "failed to queue request")
		return
	}
	a.json(w, http.StatusAccepted, jobResponse{JobID: jobID, Status: string(domain.JobStatusQueued)})
}

// Status reports a queued request owned by the caller.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	if a.Jobs == nil {
		a.error(w, http.StatusServiceUnavailable, pipeline.CodeBackendUnavail, "queue is not configured")
		return
	}
	jobID := chi.URLParam(r, "id")
	job, err := a.Jobs.Get(r.Context(), jobID, a.currentUserID(r))
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "request not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: load job")
		a.error(w, http.StatusInternalServerError, pipeline.CodeInternal, "failed to load request")
		return
	}
	resp := jobResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		RecordID:  job.RecordID,
		ErrorCode: job.ErrorCode,
		Result:    job.ResultJSON,
	}
	if job.ErrorCode != "" {
		resp.Message = pipeline.MessageForCode(job.ErrorCode)
	}
	a.json(w, http.StatusOK, resp)
}

type recordResponse struct {
	RecordID    string    `json:"record_id"`
	RequestID   string    `json:"request_id"`
	MIMEType    string    `json:"mime_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CostCredits int       `json:"cost_credits"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record returns the metadata of a saved generation owned by the caller.
// Records of other users are reported as missing.
func (a *App) Record(w http.ResponseWriter, r *http.Request) {
	if a.Records == nil {
		a.error(w, http.StatusServiceUnavailable, pipeline.CodeBackendUnavail, "records are not configured")
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := a.Records.GetRecord(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && rec.UserID != a.currentUserID(r)) {
		a.error(w, http.StatusNotFound, "not_found", "record not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("record_id", id).Msg("http: load record")
		a.error(w, http.StatusInternalServerError, pipeline.CodeInternal, "failed to load record")
		return
	}
	a.json(w, http.StatusOK, recordResponse{
		RecordID:    rec.ID,
		RequestID:   rec.RequestID,
		MIMEType:    rec.MIMEType,
		Width:       rec.Width,
		Height:      rec.Height,
		CostCredits: rec.CostCredits,
		CreatedAt:   rec.CreatedAt,
	})
}
