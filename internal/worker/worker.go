// Package worker drains queued generation requests through the pipeline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/pipeline"
)

// Runner executes one generation request.
type Runner interface {
	Run(ctx context.Context, req domain.GenerationRequest) (*pipeline.Outcome, error)
}

const (
	defaultPollInterval = 2 * time.Second
	defaultStaleAfter   = 10 * time.Minute
)

// Worker claims one job at a time. Several workers may share a queue.
type Worker struct {
	jobs         domain.JobRepository
	runner       Runner
	logger       zerolog.Logger
	pollInterval time.Duration
	staleAfter   time.Duration
}

// Options tunes polling. Zero values use the defaults.
type Options struct {
	PollInterval time.Duration
	// StaleAfter is how long a RUNNING job may go untouched before it is
	// handed back to the queue.
	StaleAfter time.Duration
}

func New(jobs domain.JobRepository, runner Runner, logger zerolog.Logger, opts Options) *Worker {
	w := &Worker{
		jobs:         jobs,
		runner:       runner,
		logger:       logger,
		pollInterval: opts.PollInterval,
		staleAfter:   opts.StaleAfter,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.staleAfter <= 0 {
		w.staleAfter = defaultStaleAfter
	}
	return w
}

// Run polls until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("worker: started")
	w.requeueStale(ctx)
	lastSweep := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(lastSweep) > w.staleAfter/2 {
			w.requeueStale(ctx)
			lastSweep = time.Now()
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: failed to process job")
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Worker) requeueStale(ctx context.Context) {
	n, err := w.jobs.RequeueStale(ctx, w.staleAfter)
	if err != nil {
		w.logger.Warn().Err(err).Msg("worker: requeue stale jobs")
		return
	}
	if n > 0 {
		w.logger.Info().Int64("jobs", n).Msg("worker: requeued stale jobs")
	}
}

// ProcessNext claims and runs a single job. It reports false when the queue
// was empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.jobs.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	log := w.logger.With().Str("job_id", job.ID).Logger()
	log.Info().Msg("worker: picked job")

	var req domain.GenerationRequest
	if err := json.Unmarshal(job.RequestJSON, &req); err != nil {
		log.Error().Err(err).Msg("worker: undecodable request")
		return true, w.complete(ctx, job.ID, domain.JobStatusFailed, "", pipeline.CodeInvalidRequest, nil)
	}
	req.RequestID = job.ID
	req.UserID = job.UserID

	out, runErr := w.runner.Run(ctx, req)
	status, recordID, code, result := resultOf(out, runErr)

	var canceled *pipeline.CanceledError
	if errors.As(runErr, &canceled) && ctx.Err() != nil {
		// shutting down: hand the job back instead of failing it
		status, code, result = domain.JobStatusQueued, "", nil
	}

	ev := log.Info()
	if status == domain.JobStatusFailed {
		ev = log.Warn().Err(runErr)
	}
	ev.Str("status", string(status)).Str("code", code).Msg("worker: job finished")
	return true, w.complete(ctx, job.ID, status, recordID, code, result)
}

func resultOf(out *pipeline.Outcome, err error) (domain.JobStatus, string, string, []byte) {
	if err == nil {
		raw, _ := json.Marshal(out)
		return domain.JobStatusSucceeded, out.RecordID, "", raw
	}
	var blocked *pipeline.GateBlockedError
	if errors.As(err, &blocked) {
		raw, _ := json.Marshal(blocked.Result)
		return domain.JobStatusBlocked, "", blocked.Code(), raw
	}
	var raw []byte
	if out != nil {
		raw, _ = json.Marshal(out)
	}
	return domain.JobStatusFailed, "", pipeline.ErrorCode(err), raw
}

func (w *Worker) complete(ctx context.Context, jobID string, status domain.JobStatus, recordID, code string, result []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return w.jobs.Complete(ctx, jobID, status, recordID, code, result)
}
