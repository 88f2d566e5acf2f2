// Package report exports the job history as an xlsx workbook with a Jobs
// sheet and a Runs sheet.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"nator/internal/logging"
	"nator/internal/queue"
)

const (
	SheetJobs = "Jobs"
	SheetRuns = "Runs"

	captionWidth = 140
)

var (
	jobHeaders = []string{
		"Job ID", "Clip ID", "State", "Last Good", "Retries", "Caption",
		"Upload URL", "Media ID", "Error", "Created", "Updated",
	}
	runHeaders = []string{
		"Run ID", "Job ID", "From", "To", "Provider", "Duration (ms)", "Error", "Created",
	}
)

// Source supplies the rows. *queue.Store satisfies it.
type Source interface {
	ListJobs(ctx context.Context, filter queue.JobFilter) ([]*queue.Job, error)
	AllRuns(ctx context.Context) ([]*queue.Run, error)
}

// Summary counts exported rows.
type Summary struct {
	Jobs int
	Runs int
}

// Build returns a workbook with every job and run in src.
func Build(ctx context.Context, src Source) (*excelize.File, Summary, error) {
	jobs, err := src.ListJobs(ctx, queue.JobFilter{})
	if err != nil {
		return nil, Summary{}, fmt.Errorf("list jobs: %w", err)
	}
	runs, err := src.AllRuns(ctx)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("list runs: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetJobs); err != nil {
		_ = f.Close()
		return nil, Summary{}, fmt.Errorf("name jobs sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetRuns); err != nil {
		_ = f.Close()
		return nil, Summary{}, fmt.Errorf("create runs sheet: %w", err)
	}

	writeRow(f, SheetJobs, 1, toCells(jobHeaders))
	for i, job := range jobs {
		writeRow(f, SheetJobs, i+2, []any{
			job.ID,
			job.ClipID,
			string(job.State),
			string(job.LastGoodState),
			job.RetryCount,
			truncate(job.Caption, captionWidth),
			job.UploadURL,
			job.PublishMediaID,
			job.ErrorMessage,
			stamp(job.CreatedAt),
			stamp(job.UpdatedAt),
		})
	}
	writeRow(f, SheetRuns, 1, toCells(runHeaders))
	for i, run := range runs {
		writeRow(f, SheetRuns, i+2, []any{
			run.ID,
			run.JobID,
			string(run.From),
			string(run.To),
			run.Provider,
			run.DurationMS,
			run.Error,
			stamp(run.CreatedAt),
		})
	}

	_ = f.SetColWidth(SheetJobs, "A", "B", 38)
	_ = f.SetColWidth(SheetJobs, "C", "E", 12)
	_ = f.SetColWidth(SheetJobs, "F", "F", 60)
	_ = f.SetColWidth(SheetJobs, "G", "I", 40)
	_ = f.SetColWidth(SheetJobs, "J", "K", 22)
	_ = f.SetColWidth(SheetRuns, "A", "B", 38)
	_ = f.SetColWidth(SheetRuns, "C", "F", 14)
	_ = f.SetColWidth(SheetRuns, "G", "G", 48)
	_ = f.SetColWidth(SheetRuns, "H", "H", 22)
	for _, sheet := range []string{SheetJobs, SheetRuns} {
		_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
	f.SetActiveSheet(0)
	return f, Summary{Jobs: len(jobs), Runs: len(runs)}, nil
}

// Write builds the workbook and streams it to w.
func Write(ctx context.Context, src Source, w io.Writer, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	start := time.Now()
	f, summary, err := Build(ctx, src)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return Summary{}, fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("export written",
		logging.Int("jobs", summary.Jobs),
		logging.Int("runs", summary.Runs),
		logging.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		logging.String(logging.FieldEventType, "export_complete"),
	)
	return summary, nil
}

// Save builds the workbook and writes it to path.
func Save(ctx context.Context, src Source, path string, logger *slog.Logger) (Summary, error) {
	f, summary, err := Build(ctx, src)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return Summary{}, fmt.Errorf("save %s: %w", path, err)
	}
	if logger != nil {
		logger.Info("export saved",
			logging.String("path", path),
			logging.Int("jobs", summary.Jobs),
			logging.Int("runs", summary.Runs),
			logging.String(logging.FieldEventType, "export_complete"),
		)
	}
	return summary, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(sheet, cell, &values)
}

func toCells(headers []string) []any {
	out := make([]any, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	if n == 1 {
		return string(runes[:1])
	}
	return string(runes[:n-1]) + "…"
}
