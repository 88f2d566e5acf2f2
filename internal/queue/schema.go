package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// requiredTables are verified by CheckHealth.
var requiredTables = []string{"clips", "jobs", "runs", "config"}

func (s *Store) initSchema(ctx context.Context) error {
	version, initialized, err := s.readSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if !initialized {
		return s.createSchema(ctx)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (move %s aside and run 'nator setup')",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) readSchemaVersion(ctx context.Context) (int, bool, error) {
	var tables int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tables); err != nil {
		return 0, false, fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, false, nil
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, true, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	})
}
