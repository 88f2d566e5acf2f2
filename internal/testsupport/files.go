package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills path with size bytes of filler, creating parent
// directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteExecutable writes a shell script to dir/name and returns its path.
func WriteExecutable(t testing.TB, dir, name, body string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write executable %s: %v", path, err)
	}
	return path
}
