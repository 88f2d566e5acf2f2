package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nator/internal/jobstate"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
	timeLayout       = "2006-01-02 15:04:05"
)

var titleCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	badge := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		badge += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", badge)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) string {
	line := "== " + strings.TrimSpace(title) + " =="
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stateLabel renders a job state for humans ("tts" becomes "TTS").
func stateLabel(s jobstate.State) string {
	switch s {
	case "":
		return "-"
	case jobstate.TTS:
		return "TTS"
	default:
		return titleCaser.String(string(s))
	}
}

func stateKind(s jobstate.State) statusKind {
	switch {
	case s == jobstate.Done:
		return statusOK
	case s == jobstate.Failed:
		return statusError
	case s.IsStage():
		return statusWarn
	default:
		return statusInfo
	}
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if width <= 0 || len(runes) <= width {
		return value
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
