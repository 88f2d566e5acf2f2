package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiGray   = "\x1b[90m"
)

// prettyHandler renders one line per record:
//
//	2026-01-02T15:04:05Z INFO  executor: [job-1/tts] stage completed key=value ...
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
	color     bool
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource, color: color}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})

	var component, jobID, stage string
	filtered := kvs[:0]
	for _, kv := range kvs {
		switch kv.key {
		case FieldComponent:
			if component == "" {
				component = attrString(kv.value)
			}
			continue
		case FieldJobID:
			if jobID == "" {
				jobID = attrString(kv.value)
			}
			continue
		case FieldStage:
			if stage == "" {
				stage = attrString(kv.value)
			}
			continue
		}
		filtered = append(filtered, kv)
	}

	var buf bytes.Buffer
	buf.Grow(128 + len(filtered)*24)

	buf.WriteString(timestamp.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	h.writeLevel(&buf, record.Level)
	buf.WriteByte(' ')

	if component != "" {
		buf.WriteString(component)
		buf.WriteString(": ")
	}
	if subject := subjectLabel(jobID, stage); subject != "" {
		buf.WriteString(subject)
		buf.WriteByte(' ')
	}

	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}

	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" [")
			buf.WriteString(filepath.Base(src.File))
			buf.WriteByte(':')
			buf.WriteString(strconv.Itoa(src.Line))
			buf.WriteByte(']')
		}
	}

	for _, kv := range filtered {
		if kv.key == "" {
			continue
		}
		buf.WriteByte(' ')
		if h.color {
			buf.WriteString(ansiGray)
		}
		buf.WriteString(kv.key)
		buf.WriteByte('=')
		if h.color {
			buf.WriteString(ansiReset)
		}
		buf.WriteString(formatValue(kv.value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) writeLevel(buf *bytes.Buffer, level slog.Level) {
	label := levelLabel(level)
	if !h.color {
		buf.WriteString(label)
		return
	}
	switch {
	case level >= slog.LevelError:
		buf.WriteString(ansiRed)
	case level >= slog.LevelWarn:
		buf.WriteString(ansiYellow)
	case level >= slog.LevelInfo:
		buf.WriteString(ansiCyan)
	default:
		buf.WriteString(ansiGray)
	}
	buf.WriteString(label)
	buf.WriteString(ansiReset)
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	return &prettyHandler{
		mu:        h.mu,
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
		color:     h.color,
		attrs:     append([]slog.Attr(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
	}
}

func subjectLabel(jobID, stage string) string {
	switch {
	case jobID != "" && stage != "":
		return "[" + jobID + "/" + stage + "]"
	case jobID != "":
		return "[" + jobID + "]"
	case stage != "":
		return "[" + stage + "]"
	default:
		return ""
	}
}

type kv struct {
	key   string
	value slog.Value
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		flattenAttrs(dst, next, attr.Value.Group())
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(append([]string(nil), prefix...), key), ".")
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}

func attrString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return formatValue(v)
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}
