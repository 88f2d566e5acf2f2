package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nator/internal/logging"
	"nator/internal/media/ffprobe"
	"nator/internal/queue"
)

// CreateJob records a pending job. A clip id, when given, must exist.
func (e *Executor) CreateJob(ctx context.Context, in queue.NewJob) (*queue.Job, error) {
	if clipID := strings.TrimSpace(in.ClipID); clipID != "" {
		clip, err := e.store.GetClip(ctx, clipID)
		if err != nil {
			return nil, err
		}
		if clip == nil {
			return nil, fmt.Errorf("clip %s: %w", clipID, queue.ErrNotFound)
		}
	}
	job, err := e.store.CreateJob(ctx, in)
	if err != nil {
		return nil, err
	}
	e.logger.Info("job created",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("clip_id", job.ClipID),
		logging.Bool("manual_script", job.ScriptText != ""),
		logging.String(logging.FieldEventType, "job_created"),
	)
	return job, nil
}

// NextJob returns the oldest pending job, or creates one from the oldest
// unused clip. It returns nil when there is nothing to do.
func (e *Executor) NextJob(ctx context.Context) (*queue.Job, error) {
	job, err := e.store.NextPendingJob(ctx)
	if err != nil || job != nil {
		return job, err
	}
	clip, err := e.store.NextAvailableClip(ctx)
	if err != nil || clip == nil {
		return nil, err
	}
	return e.CreateJob(ctx, queue.NewJob{ClipID: clip.ID})
}

// IngestClip records a media file as an available clip. Duration is filled
// in when ffprobe can read the file; a probe failure is not an error.
func (e *Executor) IngestClip(ctx context.Context, path string) (*queue.Clip, error) {
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("clip not found: %s", abs)
		}
		return nil, fmt.Errorf("stat clip: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("clip %s is a directory", abs)
	}

	rejectDuplicates, err := e.settings.Bool(ctx, keyDuplicates)
	if err != nil {
		return nil, err
	}

	var duration float64
	if secs, err := ffprobe.Duration(ctx, e.cfg.Render.FFprobeBinary, abs); err == nil {
		duration = secs
	} else {
		e.logger.Debug("clip probe skipped", logging.String("path", abs), logging.Error(err))
	}

	clip, err := e.store.IngestClip(ctx, queue.NewClip{FilePath: abs, SizeBytes: info.Size(), DurationSecs: duration}, rejectDuplicates)
	if err != nil {
		return nil, err
	}
	e.logger.Info("clip ingested",
		logging.String("clip_id", clip.ID),
		logging.String("path", abs),
		logging.Int64("size_bytes", clip.SizeBytes),
		logging.Float64("duration_secs", clip.DurationSecs),
		logging.String(logging.FieldEventType, "clip_ingested"),
	)
	return clip, nil
}

// Recover moves jobs left in a working stage by a crashed process to failed,
// so a retry resumes them.
func (e *Executor) Recover(ctx context.Context) ([]*queue.Job, error) {
	jobs, err := e.store.FailInterrupted(ctx)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		e.logger.Warn("interrupted job marked failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldEventType, "job_interrupted"),
			logging.String(logging.FieldErrorHint, "run: nator retry "+job.ID),
		)
	}
	return jobs, nil
}
