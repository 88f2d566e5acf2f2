package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultBinary is used when callers pass an empty binary name.
const DefaultBinary = "ffprobe"

// Result is the parsed ffprobe report.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one elementary stream.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format holds container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against path.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect %s: %w", path, err)
	}
	return Parse(output)
}

// Parse decodes raw ffprobe JSON.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Duration returns the container duration of path in seconds.
func Duration(ctx context.Context, binary, path string) (float64, error) {
	result, err := Inspect(ctx, binary, path)
	if err != nil {
		return 0, err
	}
	secs := result.DurationSeconds()
	if math.IsNaN(secs) || secs <= 0 {
		return 0, fmt.Errorf("ffprobe: no duration reported for %s", path)
	}
	return secs, nil
}

// DurationSeconds returns the container duration, falling back to the
// longest stream. NaN means the value was present but unparseable.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d != 0 {
		return d
	}
	longest := 0.0
	for _, s := range r.Streams {
		if d := parseFloat(s.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// HasVideo reports whether any video stream is present.
func (r Result) HasVideo() bool {
	return r.countType("video") > 0
}

// HasAudio reports whether any audio stream is present.
func (r Result) HasAudio() bool {
	return r.countType("audio") > 0
}

// VideoSize returns the dimensions of the first video stream.
func (r Result) VideoSize() (int, int) {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s.Width, s.Height
		}
	}
	return 0, 0
}

func (r Result) countType(kind string) int {
	count := 0
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, kind) {
			count++
		}
	}
	return count
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
