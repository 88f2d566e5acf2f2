package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"nator/internal/jobstate"
)

// Stats returns job counts grouped by state.
func (s *Store) Stats(ctx context.Context) (map[jobstate.State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[jobstate.State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[jobstate.State(state)] = count
	}
	return stats, rows.Err()
}

// ClipStats returns clip counts grouped by status.
func (s *Store) ClipStats(ctx context.Context) (map[ClipStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM clips GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("clip stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[ClipStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[ClipStatus(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state counts for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for state, count := range stats {
		health.Total += count
		switch {
		case state == jobstate.Pending:
			health.Pending += count
		case state == jobstate.Failed:
			health.Failed += count
		case state == jobstate.Done:
			health.Done += count
		case state.IsStage():
			health.Processing += count
		}
	}
	return health, nil
}

// FailInterrupted moves jobs left in a working stage to failed with
// InterruptedReason. Each move is an audited transition, so a later retry
// resumes after the job's last completed stage.
func (s *Store) FailInterrupted(ctx context.Context) ([]*Job, error) {
	stuck, err := s.JobsInStages(ctx, jobstate.PipelineOrder()...)
	if err != nil {
		return nil, err
	}
	var recovered []*Job
	for _, job := range stuck {
		updated, err := s.TransitionJob(ctx, job.ID, Transition{
			To:       jobstate.Failed,
			Provider: string(job.State),
			Error:    InterruptedReason,
		})
		if err != nil {
			return recovered, fmt.Errorf("fail interrupted job %s: %w", job.ID, err)
		}
		recovered = append(recovered, updated)
	}
	return recovered, nil
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	version, _, err := s.readSchemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	var present []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present = append(present, name)
	}
	rows.Close()
	for _, table := range requiredTables {
		if !slices.Contains(present, table) {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if len(health.MissingTables) == 0 {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM jobs").Scan(&health.TotalJobs); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count jobs: %w", err)
		}
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM clips").Scan(&health.TotalClips); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count clips: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
