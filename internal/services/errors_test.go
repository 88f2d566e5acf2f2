package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"nator/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "renderer", "ffmpeg", "render failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"renderer", "ffmpeg", "render failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrConfiguration, "storage", "r2", "missing bucket", nil), "configuration"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrTimeout, "publisher", "poll", "", nil)), "timeout"},
		{errors.New("plain"), "unknown"},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
