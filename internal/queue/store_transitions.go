package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nator/internal/jobstate"
)

// TransitionJob moves a job to t.To and appends the matching run record.
//
// The current state is re-read inside the transaction and validated with
// jobstate.Check, so a rejected move returns *jobstate.InvalidTransitionError
// and leaves both tables untouched. Entering failed stores t.Error on the job
// and bumps retry_count; leaving failed clears the stored error.
func (s *Store) TransitionJob(ctx context.Context, id string, t Transition) (*Job, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, `SELECT state FROM jobs WHERE id = ?`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("job %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("read job state: %w", err)
		}
		from := jobstate.State(current)
		if err := jobstate.Check(id, from, t.To); err != nil {
			return err
		}

		now := s.timestamp()
		sets, args := updateAssignments(t.Update)
		sets = append(sets, "state = ?", "updated_at = ?")
		args = append(args, t.To, now)
		switch {
		case t.To == jobstate.Failed:
			sets = append(sets, "error_message = ?", "retry_count = retry_count + 1")
			args = append(args, nullableString(t.Error))
		case from == jobstate.Failed:
			sets = append(sets, "error_message = NULL")
		}
		args = append(args, id)
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return fmt.Errorf("update job state: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, job_id, state_from, state_to, provider, duration_ms, error, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(),
			id,
			from,
			t.To,
			nullableString(t.Provider),
			t.Duration.Milliseconds(),
			nullableString(t.Error),
			now,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// Runs returns the audit trail for a job in creation order.
func (s *Store) Runs(ctx context.Context, jobID string) ([]*Run, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs WHERE job_id = ? ORDER BY created_at, rowid`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AllRuns returns every run, oldest first. Used by exports.
func (s *Store) AllRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
