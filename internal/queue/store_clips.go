package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IngestClip records a clip as available. When rejectDuplicates is set, a
// path that already has a clip row fails with ErrDuplicateClip.
func (s *Store) IngestClip(ctx context.Context, in NewClip, rejectDuplicates bool) (*Clip, error) {
	path := strings.TrimSpace(in.FilePath)
	if path == "" {
		return nil, errors.New("clip path is required")
	}
	if rejectDuplicates {
		existing, err := s.FindClipByPath(ctx, path)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, fmt.Errorf("%s: %w", path, ErrDuplicateClip)
		}
	}
	id := uuid.NewString()
	if _, err := s.exec(ctx,
		`INSERT INTO clips (id, file_path, size_bytes, duration_secs, status, ingested_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		path,
		in.SizeBytes,
		nullableFloat(in.DurationSecs),
		ClipAvailable,
		s.timestamp(),
	); err != nil {
		return nil, fmt.Errorf("insert clip: %w", err)
	}
	return s.GetClip(ctx, id)
}

// GetClip fetches a clip by id. It returns nil, nil when the clip does not exist.
func (s *Store) GetClip(ctx context.Context, id string) (*Clip, error) {
	return s.clipRow(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, id)
}

// FindClipByPath returns the first clip recorded for path.
func (s *Store) FindClipByPath(ctx context.Context, path string) (*Clip, error) {
	return s.clipRow(ctx, `SELECT `+clipColumns+` FROM clips WHERE file_path = ? ORDER BY ingested_at LIMIT 1`, path)
}

// ListClips returns clips oldest first, optionally filtered by status.
func (s *Store) ListClips(ctx context.Context, status ClipStatus, limit int) ([]*Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY ingested_at, rowid`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// NextAvailableClip returns the oldest available clip that no job references
// yet, or nil when there is none.
func (s *Store) NextAvailableClip(ctx context.Context) (*Clip, error) {
	return s.clipRow(ctx,
		`SELECT `+clipColumns+` FROM clips c
         WHERE c.status = ? AND NOT EXISTS (SELECT 1 FROM jobs j WHERE j.clip_id = c.id)
         ORDER BY c.ingested_at, c.rowid LIMIT 1`,
		ClipAvailable,
	)
}

// MarkClipUsed flips a clip to used.
func (s *Store) MarkClipUsed(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `UPDATE clips SET status = ? WHERE id = ?`, ClipUsed, id)
	if err != nil {
		return fmt.Errorf("mark clip used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("clip %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) clipRow(ctx context.Context, query string, args ...any) (*Clip, error) {
	clip, err := scanClip(s.db.QueryRowContext(ensureContext(ctx), query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clip: %w", err)
	}
	return clip, nil
}
