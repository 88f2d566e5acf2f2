package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// Filter selects log lines. An empty filter matches everything.
type Filter struct {
	JobID string
	Level string
}

// Match reports whether line passes the filter. Job ids are matched as a
// substring so both console and JSON formats work.
func (f Filter) Match(line string) bool {
	if f.JobID != "" && !strings.Contains(line, f.JobID) {
		return false
	}
	if f.Level != "" && !strings.Contains(strings.ToUpper(line), strings.ToUpper(f.Level)) {
		return false
	}
	return true
}

// Tail returns up to n trailing lines of path that pass filter, plus the
// offset of the end of the file. A missing file yields no lines.
func Tail(path string, n int, filter Filter) ([]string, int64, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return nil, 0, err
	}
	defer file.Close()

	if n <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, n)
	count, next := 0, 0
	scanner := newScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !filter.Match(line) {
			continue
		}
		ring[next] = line
		next = (next + 1) % n
		if count < n {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	lines := make([]string, count)
	start := 0
	if count == n {
		start = next
	}
	for i := range lines {
		lines[i] = ring[(start+i)%n]
	}
	return lines, end, nil
}

// Follow hands every line appended after offset to emit, checking the file
// every interval until ctx is done. A file that shrinks below offset is
// treated as rotated and read from the start.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, filter Filter, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, filter, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(string)) (int64, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	// Only whole lines are consumed; a partial trailing line is re-read on
	// the next poll.
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if text := strings.TrimRight(line, "\r\n"); filter.Match(text) {
			emit(text)
		}
	}
}

func open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scanner
}
