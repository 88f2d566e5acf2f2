package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nator/internal/jobstate"
)

// CreateJob inserts a pending job.
func (s *Store) CreateJob(ctx context.Context, in NewJob) (*Job, error) {
	now := s.timestamp()
	id := uuid.NewString()
	if _, err := s.exec(ctx,
		`INSERT INTO jobs (id, clip_id, state, caption, script_text, retry_count, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id,
		nullableString(strings.TrimSpace(in.ClipID)),
		jobstate.Pending,
		nullableString(in.Caption),
		nullableString(in.ScriptText),
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by id. It returns nil, nil when the job does not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by state.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if filter.State != "" {
		query += ` WHERE state = ?`
		args = append(args, filter.State)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryJobs(ctx, query, args...)
}

// NextPendingJob returns the oldest pending job, or nil when none exist.
func (s *Store) NextPendingJob(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE state = ? ORDER BY created_at, rowid LIMIT 1`,
		jobstate.Pending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return job, nil
}

// UpdateJobFields writes artifact fields without touching state.
func (s *Store) UpdateJobFields(ctx context.Context, id string, update JobUpdate) error {
	if update.Empty() {
		return nil
	}
	sets, args := updateAssignments(update)
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timestamp(), id)
	res, err := s.exec(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountDoneBetween counts jobs that reached done with updated_at in [start, end).
func (s *Store) CountDoneBetween(ctx context.Context, start, end time.Time) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM jobs WHERE state = ? AND updated_at >= ? AND updated_at < ?`,
		jobstate.Done,
		formatTime(start),
		formatTime(end),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count done jobs: %w", err)
	}
	return count, nil
}

// JobsInStages returns jobs whose state is one of states, oldest first.
func (s *Store) JobsInStages(ctx context.Context, states ...jobstate.State) ([]*Job, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	args := make([]any, 0, len(states))
	for _, st := range states {
		args = append(args, st)
	}
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE state IN (`+placeholders+`) ORDER BY created_at, rowid`,
		args...,
	)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func updateAssignments(update JobUpdate) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, column+" = ?")
		args = append(args, nullableString(*value))
	}
	add("script_text", update.ScriptText)
	add("caption", update.Caption)
	add("tts_audio_path", update.TTSAudioPath)
	add("rendered_video_path", update.RenderedVideoPath)
	add("upload_url", update.UploadURL)
	add("publish_container_id", update.PublishContainerID)
	add("publish_media_id", update.PublishMediaID)
	if update.LastGoodState != nil {
		sets = append(sets, "last_good_state = ?")
		args = append(args, nullableString(string(*update.LastGoodState)))
	}
	return sets, args
}
