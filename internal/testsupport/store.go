package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"nator/internal/config"
	"nator/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewClip writes a small file under the config base dir and ingests it.
func NewClip(t testing.TB, store *queue.Store, cfg *config.Config, name string) *queue.Clip {
	t.Helper()

	path := filepath.Join(BaseDir(cfg), "clips", name)
	WriteFile(t, path, 1024)
	clip, err := store.IngestClip(context.Background(), queue.NewClip{FilePath: path, SizeBytes: 1024}, true)
	if err != nil {
		t.Fatalf("store.IngestClip: %v", err)
	}
	return clip
}

// NewJob creates a pending job for tests.
func NewJob(t testing.TB, store *queue.Store, in queue.NewJob) *queue.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), in)
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
