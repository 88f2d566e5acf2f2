package queue_test

import (
	"context"
	"errors"
	"testing"

	"nator/internal/queue"
	"nator/internal/testsupport"
)

func TestIngestClipRejectsDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	in := queue.NewClip{FilePath: "/clips/a.mp4", SizeBytes: 10, DurationSecs: 12.5}
	clip, err := store.IngestClip(ctx, in, true)
	if err != nil {
		t.Fatalf("IngestClip failed: %v", err)
	}
	if clip.Status != queue.ClipAvailable || clip.DurationSecs != 12.5 {
		t.Fatalf("unexpected clip: %+v", clip)
	}
	if _, err := store.IngestClip(ctx, in, true); !errors.Is(err, queue.ErrDuplicateClip) {
		t.Fatalf("expected ErrDuplicateClip, got %v", err)
	}
	if _, err := store.IngestClip(ctx, in, false); err != nil {
		t.Fatalf("duplicate allowed when detection disabled: %v", err)
	}
	clips, err := store.ListClips(ctx, "", 0)
	if err != nil || len(clips) != 2 {
		t.Fatalf("expected two clips, got %d (%v)", len(clips), err)
	}
}

func TestNextAvailableClipSkipsClaimedClips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewClip(t, store, cfg, "first.mp4")
	second := testsupport.NewClip(t, store, cfg, "second.mp4")

	next, err := store.NextAvailableClip(ctx)
	if err != nil || next == nil || next.ID != first.ID {
		t.Fatalf("expected first clip, got %+v (%v)", next, err)
	}

	testsupport.NewJob(t, store, queue.NewJob{ClipID: first.ID})
	next, err = store.NextAvailableClip(ctx)
	if err != nil || next == nil || next.ID != second.ID {
		t.Fatalf("expected second clip once first is claimed, got %+v (%v)", next, err)
	}

	if err := store.MarkClipUsed(ctx, second.ID); err != nil {
		t.Fatalf("MarkClipUsed failed: %v", err)
	}
	next, err = store.NextAvailableClip(ctx)
	if err != nil || next != nil {
		t.Fatalf("expected no available clip, got %+v (%v)", next, err)
	}
	used, _ := store.ListClips(ctx, queue.ClipUsed, 0)
	if len(used) != 1 || used[0].ID != second.ID {
		t.Fatalf("unexpected used clips: %+v", used)
	}
	if err := store.MarkClipUsed(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
