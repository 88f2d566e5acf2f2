package report_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"nator/internal/jobstate"
	"nator/internal/queue"
	"nator/internal/report"
	"nator/internal/testsupport"
)

func TestWriteExportsJobsAndRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, queue.NewJob{Caption: "tide pools"})
	testsupport.NewJob(t, store, queue.NewJob{})
	for _, to := range []jobstate.State{jobstate.Scripting, jobstate.Failed} {
		if _, err := store.TransitionJob(ctx, job.ID, queue.Transition{To: to, Provider: "mock", Error: "x"}); err != nil {
			t.Fatalf("TransitionJob failed: %v", err)
		}
	}

	var buf bytes.Buffer
	summary, err := report.Write(ctx, store, &buf, nil)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if summary.Jobs != 2 || summary.Runs != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer f.Close()

	jobs, err := f.GetRows(report.SheetJobs)
	if err != nil {
		t.Fatalf("GetRows(jobs) failed: %v", err)
	}
	if len(jobs) != 3 || jobs[0][0] != "Job ID" {
		t.Fatalf("unexpected jobs sheet: %v", jobs)
	}
	runs, err := f.GetRows(report.SheetRuns)
	if err != nil {
		t.Fatalf("GetRows(runs) failed: %v", err)
	}
	if len(runs) != 3 || runs[1][1] != job.ID || runs[2][3] != "failed" {
		t.Fatalf("unexpected runs sheet: %v", runs)
	}
}

func TestSaveWritesFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := filepath.Join(t.TempDir(), "jobs.xlsx")

	if _, err := report.Save(context.Background(), store, path, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if sheets := f.GetSheetList(); len(sheets) != 2 || sheets[0] != report.SheetJobs || sheets[1] != report.SheetRuns {
		t.Fatalf("unexpected sheets: %v", sheets)
	}
}
