package workflow

import (
	"context"
	"errors"
	"log/slog"

	"nator/internal/jobstate"
	"nator/internal/logging"
	"nator/internal/notifications"
	"nator/internal/queue"
)

func (e *Executor) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func (e *Executor) notifyCompleted(ctx context.Context, logger *slog.Logger, job *queue.Job, provider string) {
	mode := "live"
	if provider == DryRunProvider {
		mode = "dry run"
	}
	e.publish(ctx, logger, notifications.EventJobCompleted, notifications.Payload{
		"jobID":   job.ID,
		"mediaID": job.PublishMediaID,
		"mode":    mode,
	})
}

func (e *Executor) notifyFailed(ctx context.Context, logger *slog.Logger, jobID string, stage jobstate.State, message string) {
	e.publish(ctx, logger, notifications.EventJobFailed, notifications.Payload{
		"jobID": jobID,
		"stage": string(stage),
		"error": message,
	})
}

func (e *Executor) notifyGate(ctx context.Context, logger *slog.Logger, gateErr error) {
	var quota *QuotaError
	switch {
	case errors.Is(gateErr, ErrSafetyHalt):
		path, _, _ := e.KillSwitch(ctx)
		e.publish(ctx, logger, notifications.EventSafetyHalt, notifications.Payload{"path": path})
	case errors.As(gateErr, &quota):
		e.publish(ctx, logger, notifications.EventQuotaReached, notifications.Payload{
			"count": quota.Count,
			"limit": quota.Limit,
		})
	}
}
