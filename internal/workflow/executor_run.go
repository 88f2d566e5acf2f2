package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"nator/internal/jobstate"
	"nator/internal/logging"
	"nator/internal/queue"
	"nator/internal/services"
)

// RunJob advances a pending or failed job as far as it will go.
//
// Errors are returned only for problems detected before any state change:
// unknown job, a job that is not runnable, the kill switch, the daily quota,
// or a store failure. A provider failure is reported through the Result after
// the job has been moved to failed.
func (e *Executor) RunJob(ctx context.Context, jobID string) (Result, error) {
	started := time.Now()
	job, err := e.loadJob(ctx, jobID)
	if err != nil {
		return Result{JobID: jobID}, err
	}

	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, e.logger)

	var start jobstate.State
	switch job.State {
	case jobstate.Pending:
		start = jobstate.Scripting
	case jobstate.Failed:
		start = jobstate.ResumeState(job.LastGoodState)
	default:
		return Result{JobID: job.ID, State: job.State}, fmt.Errorf("%w: job %s is %s", ErrNotRunnable, job.ID, job.State)
	}

	if err := e.checkGates(ctx); err != nil {
		e.notifyGate(ctx, logger, err)
		logger.Warn("run blocked",
			logging.String(logging.FieldEventType, "run_blocked"),
			logging.String("job_state", string(job.State)),
			logging.Error(err),
		)
		return Result{JobID: job.ID, State: job.State}, err
	}

	clipPath, err := e.clipPath(ctx, job)
	if err != nil {
		return Result{JobID: job.ID, State: job.State}, err
	}

	logger.Info("job run started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("from_state", string(job.State)),
		logging.String("start_stage", string(start)),
		logging.Int("retry_count", job.RetryCount),
	)

	result, err := e.runStages(ctx, logger, job, start, newJobContext(job, clipPath))
	result.JobID = job.ID
	result.Duration = time.Since(started)
	return result, err
}

// runStages walks the pipeline from start. A stage's outcome is the transition
// out of it: on success that transition carries the stage's kind/provider
// label and duration; on failure it names the failing stage.
func (e *Executor) runStages(ctx context.Context, logger *slog.Logger, job *queue.Job, start jobstate.State, jc jobContext) (Result, error) {
	order := jobstate.PipelineOrder()
	startIdx := jobstate.Index(start)
	if startIdx < 0 {
		return Result{State: job.State}, fmt.Errorf("resume stage %q is not a pipeline stage", start)
	}

	var (
		prevLabel    string
		prevDuration time.Duration
	)
	for i := startIdx; i < len(order); i++ {
		stage := order[i]
		if _, err := e.store.TransitionJob(ctx, job.ID, queue.Transition{
			To:       stage,
			Provider: prevLabel,
			Duration: prevDuration,
		}); err != nil {
			return Result{State: stage}, fmt.Errorf("enter %s: %w", stage, err)
		}

		stageCtx := services.WithStage(ctx, string(stage))
		stageLogger := logging.WithContext(stageCtx, e.logger)
		run, err := e.stageFor(stage)
		if err != nil {
			return Result{State: stage}, err
		}

		stageStart := time.Now()
		out, stageErr := run(stageCtx, jc)
		elapsed := time.Since(stageStart)
		if stageErr != nil {
			return e.failStage(stageCtx, stageLogger, job.ID, stage, out, elapsed, stageErr)
		}

		lastGood := stage
		update := out.Update.Merge(queue.JobUpdate{LastGoodState: &lastGood})
		jc = jc.with(out.Update)
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String(logging.FieldProvider, out.Provider),
			logging.Duration("stage_duration", elapsed),
		)

		if i == len(order)-1 {
			return e.complete(ctx, logger, job, out.Provider, elapsed, update)
		}
		if err := e.store.UpdateJobFields(ctx, job.ID, update); err != nil {
			return Result{State: stage}, fmt.Errorf("persist %s output: %w", stage, err)
		}
		prevLabel, prevDuration = runLabel(stage, out.Provider), elapsed
	}
	return Result{State: job.State}, errors.New("pipeline ended without reaching done")
}

func (e *Executor) complete(ctx context.Context, logger *slog.Logger, job *queue.Job, provider string, elapsed time.Duration, update queue.JobUpdate) (Result, error) {
	done, err := e.store.TransitionJob(ctx, job.ID, queue.Transition{
		To:       jobstate.Done,
		Provider: runLabel(jobstate.Publishing, provider),
		Duration: elapsed,
		Update:   update,
	})
	if err != nil {
		return Result{State: jobstate.Publishing}, fmt.Errorf("complete job: %w", err)
	}
	if job.ClipID != "" {
		if err := e.store.MarkClipUsed(ctx, job.ClipID); err != nil {
			logger.Warn("clip not marked used",
				logging.String("clip_id", job.ClipID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "clip_mark_failed"),
				logging.String(logging.FieldImpact, "clip may be offered again by the scheduler"),
			)
		}
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("media_id", done.PublishMediaID),
	)
	e.notifyCompleted(ctx, logger, done, provider)
	return Result{Success: true, State: jobstate.Done}, nil
}

// failStage records the failure as a transition to failed, naming the stage as
// the failing capability. The job keeps the last_good_state set by the
// previous successful stage.
func (e *Executor) failStage(ctx context.Context, logger *slog.Logger, jobID string, stage jobstate.State, out stageOutput, elapsed time.Duration, cause error) (Result, error) {
	// A cancelled run still has to land in failed.
	ctx = context.WithoutCancel(ctx)
	provider := out.Provider
	if provider == "" {
		provider = string(stage)
	}
	stageErr := &StageError{Stage: stage, Provider: provider, Err: cause}
	message := strings.TrimSpace(cause.Error())

	if _, err := e.store.TransitionJob(ctx, jobID, queue.Transition{
		To:       jobstate.Failed,
		Provider: string(stage),
		Duration: elapsed,
		Error:    message,
		Update:   out.Update,
	}); err != nil {
		return Result{State: stage, Error: message, Err: stageErr}, fmt.Errorf("record %s failure: %w", stage, err)
	}

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldProvider, provider),
		logging.String("error_kind", services.Classify(cause)),
		logging.Duration("stage_duration", elapsed),
		logging.String(logging.FieldErrorHint, "fix the cause, then run: nator retry "+jobID),
		logging.Error(cause),
	)
	e.notifyFailed(ctx, logger, jobID, stage, message)
	return Result{State: stage, Error: message, Err: stageErr}, nil
}

// RetryJob runs a failed job again from its resume point.
func (e *Executor) RetryJob(ctx context.Context, jobID string) (Result, error) {
	job, err := e.loadJob(ctx, jobID)
	if err != nil {
		return Result{JobID: jobID}, err
	}
	if job.State != jobstate.Failed {
		return Result{JobID: job.ID, State: job.State}, fmt.Errorf("%w: job %s is %s", ErrNotRetryable, job.ID, job.State)
	}
	return e.RunJob(ctx, job.ID)
}

// RequeueJob moves a failed job back to pending so the next tick starts it
// again from the first stage. The resume point is cleared; stored script text
// is kept and will be reused as-is.
func (e *Executor) RequeueJob(ctx context.Context, jobID string) (*queue.Job, error) {
	job, err := e.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != jobstate.Failed {
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotRetryable, job.ID, job.State)
	}
	cleared := jobstate.State("")
	return e.store.TransitionJob(ctx, job.ID, queue.Transition{
		To:       jobstate.Pending,
		Provider: "operator",
		Update:   queue.JobUpdate{LastGoodState: &cleared},
	})
}

func (e *Executor) clipPath(ctx context.Context, job *queue.Job) (string, error) {
	if strings.TrimSpace(job.ClipID) == "" {
		return "", nil
	}
	clip, err := e.store.GetClip(ctx, job.ClipID)
	if err != nil {
		return "", err
	}
	if clip == nil {
		return "", nil
	}
	return clip.FilePath, nil
}
