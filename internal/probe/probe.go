// Package probe implements the smoke probe against a remote
// image-transformation endpoint: submit one job, poll it to a terminal
// state, persist the result. Every failure path collapses into a Report
// rather than an error so the surrounding pipeline always sees a clean
// exit.
package probe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"runpod-probe/internal/config"
	"runpod-probe/internal/domain"
	"runpod-probe/internal/domain/model"
	"runpod-probe/internal/infra/imaging"
	"runpod-probe/internal/infra/logging"

	"github.com/rs/zerolog"
)

// JobService is the slice of the remote API the prober needs.
type JobService interface {
	Submit(ctx context.Context, in model.JobInput) (string, error)
	Status(ctx context.Context, jobID string) (*model.StatusResponse, error)
}

// Outcome classifies how a probe run ended. None of these are failures
// from the caller's point of view.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeSkipped            Outcome = "skipped"
	OutcomeUnavailable        Outcome = "service-unavailable"
	OutcomeUnexpectedResponse Outcome = "unexpected-response"
	OutcomeUnexpectedOutput   Outcome = "unexpected-output"
	OutcomeJobFailed          Outcome = "job-failed"
	OutcomeJobCancelled       Outcome = "job-cancelled"
	OutcomeStuckInQueue       Outcome = "stuck-in-queue"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeError              Outcome = "unexpected-error"
)

// Report is what a probe run hands back to the entry point.
type Report struct {
	Outcome     Outcome
	Message     string
	JobID       string
	FinalStatus model.JobStatus
	Polls       int
	Elapsed     time.Duration
	ResultPath  string
}

// Prober drives one job through the remote endpoint. The pacing fields
// exist so tests can shrink the loop to milliseconds; production code
// keeps the defaults.
type Prober struct {
	svc JobService
	cfg config.ProbeConfig
	log *zerolog.Logger

	PollInterval    time.Duration
	RetryInterval   time.Duration
	QueueStallPolls int
}

func New(svc JobService, cfg config.ProbeConfig, log *zerolog.Logger) *Prober {
	return &Prober{
		svc:             svc,
		cfg:             cfg,
		log:             log,
		PollInterval:    2 * time.Second,
		RetryInterval:   5 * time.Second,
		QueueStallPolls: 60,
	}
}

// Run executes the full probe. It never returns an error and never
// panics outward: the deferred recover mirrors the outermost catch-all
// this probe has always had, keeping CI green no matter what.
func (p *Prober) Run(ctx context.Context) (rep *Report) {
	defer logging.TraceDuration(p.log, "Prober.Run")()

	start := time.Now()
	rep = &Report{}
	defer func() {
		if r := recover(); r != nil {
			rep.Outcome = OutcomeError
			rep.Message = fmt.Sprintf("unexpected error: %v", r)
		}
		rep.Elapsed = time.Since(start)
	}()

	// Preconditions: no credentials or no input means skip, not fail,
	// and no network call may happen.
	if p.cfg.APIKey == "" {
		p.log.Warn().Msg("RUNPOD_API_KEY not set, skipping probe")
		rep.Outcome = OutcomeSkipped
		rep.Message = "api key not set"
		return rep
	}
	if _, err := os.Stat(p.cfg.InputPath); err != nil {
		p.log.Warn().Str("path", p.cfg.InputPath).Msg("input image not found, skipping probe")
		rep.Outcome = OutcomeSkipped
		rep.Message = "input image not found"
		return rep
	}

	p.log.Info().Str("path", p.cfg.InputPath).Msg("preparing input image")
	encoded, err := imaging.PrepareInput(p.cfg.InputPath)
	if err != nil {
		rep.Outcome = OutcomeError
		rep.Message = fmt.Sprintf("prepare input: %v", err)
		return rep
	}

	in := model.JobInput{
		Image:             encoded,
		Prompt:            p.cfg.Prompt,
		NumInferenceSteps: p.cfg.NumInferenceSteps,
		TrueCFGScale:      p.cfg.TrueCFGScale,
	}

	p.log.Info().Str("base_url", p.cfg.BaseURL).Msg("submitting job")
	jobID, err := p.svc.Submit(ctx, in)
	switch {
	case errors.Is(err, domain.ErrNoJobID):
		rep.Outcome = OutcomeUnexpectedResponse
		rep.Message = err.Error()
		return rep
	case err != nil:
		// Cold starts make the endpoint legitimately slow or
		// unreachable; a probe must not turn that into a failure.
		p.log.Warn().Err(err).Msg("job submission failed")
		rep.Outcome = OutcomeUnavailable
		rep.Message = err.Error()
		return rep
	}
	rep.JobID = jobID
	p.log.Info().Str("job_id", jobID).Dur("max_wait", p.cfg.MaxWait).Msg("job submitted, polling for completion")

	// The wait budget covers polling only, image prep and a slow
	// submission don't count against it.
	pollStart := time.Now()
	deadline := pollStart.Add(p.cfg.MaxWait)
	var last model.JobStatus

	for time.Now().Before(deadline) {
		rep.Polls++

		st, err := p.svc.Status(ctx, jobID)
		if err != nil {
			p.log.Warn().Err(err).Int("poll", rep.Polls).Msg("status check failed, retrying")
			if !p.pause(ctx, p.RetryInterval) {
				break
			}
			continue
		}

		// Only log transitions, polling every 2s is chatty enough.
		if st.Status != last {
			p.log.Info().
				Str("status", string(st.Status)).
				Dur("elapsed", time.Since(pollStart)).
				Msg("job status")
			last = st.Status
		}
		rep.FinalStatus = st.Status

		switch st.Status {
		case model.JobStatusCompleted:
			return p.persistResult(rep, st)
		case model.JobStatusFailed:
			msg := st.Error
			if msg == "" {
				msg = "unknown error"
			}
			rep.Outcome = OutcomeJobFailed
			rep.Message = msg
			return rep
		case model.JobStatusCancelled:
			rep.Outcome = OutcomeJobCancelled
			rep.Message = "job was cancelled"
			return rep
		}

		// A job that never leaves the queue means no worker picked it
		// up; bail out early instead of waiting out the full timeout.
		if rep.Polls > p.QueueStallPolls && st.Status == model.JobStatusInQueue {
			rep.Outcome = OutcomeStuckInQueue
			rep.Message = fmt.Sprintf("still queued after %d polls", rep.Polls)
			return rep
		}

		if !p.pause(ctx, p.PollInterval) {
			break
		}
	}

	rep.Outcome = OutcomeTimeout
	if ctx.Err() != nil {
		rep.Message = "interrupted: " + ctx.Err().Error()
	} else {
		rep.Message = fmt.Sprintf("job did not complete within %s (last status: %s)", p.cfg.MaxWait, last)
	}
	return rep
}

func (p *Prober) persistResult(rep *Report, st *model.StatusResponse) *Report {
	if st.Output == nil || st.Output.ImageBase64 == "" {
		rep.Outcome = OutcomeUnexpectedOutput
		rep.Message = "completed job carried no image_base64 output"
		return rep
	}
	raw, err := base64.StdEncoding.DecodeString(st.Output.ImageBase64)
	if err != nil {
		rep.Outcome = OutcomeUnexpectedOutput
		rep.Message = fmt.Sprintf("decode output image: %v", err)
		return rep
	}
	if err := os.WriteFile(p.cfg.OutputPath, raw, 0o644); err != nil {
		rep.Outcome = OutcomeError
		rep.Message = fmt.Sprintf("write result: %v", err)
		return rep
	}
	p.log.Info().Str("path", p.cfg.OutputPath).Int("bytes", len(raw)).Msg("result image saved")
	rep.Outcome = OutcomeCompleted
	rep.Message = "result image saved"
	rep.ResultPath = p.cfg.OutputPath
	return rep
}

// pause sleeps for d unless the context is cancelled first. Returns
// false when the wait was interrupted.
func (p *Prober) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
