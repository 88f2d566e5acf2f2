package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nator/internal/config"
	"nator/internal/jobstate"
	"nator/internal/notifications"
	"nator/internal/providers"
	"nator/internal/providers/mock"
	"nator/internal/queue"
	"nator/internal/testsupport"
	"nator/internal/textutil"
	"nator/internal/workflow"
)

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	stubs    *testsupport.Stubs
	notifier *testsupport.Notifier
	exec     *workflow.Executor
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	resolver := config.NewResolver(cfg, store)
	reg := providers.NewRegistry(providers.Env{Config: cfg, Settings: resolver})
	mock.Register(reg)
	stubs := testsupport.NewStubs()
	stubs.Register(reg)
	notifier := &testsupport.Notifier{}
	return &harness{
		cfg:      cfg,
		store:    store,
		stubs:    stubs,
		notifier: notifier,
		exec:     workflow.NewExecutor(cfg, store, reg, resolver, workflow.WithNotifier(notifier)),
	}
}

func (h *harness) job(t *testing.T, id string) *queue.Job {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s missing", id)
	}
	return job
}

func (h *harness) runs(t *testing.T, id string) []*queue.Run {
	t.Helper()
	runs, err := h.store.Runs(context.Background(), id)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	return runs
}

func (h *harness) events(event notifications.Event) []testsupport.Notification {
	var out []testsupport.Notification
	for _, n := range h.notifier.Events() {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

func TestRunJobCompletesWithMockProviders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	clip := testsupport.NewClip(t, h.store, h.cfg, "beach.mp4")
	job := testsupport.NewJob(t, h.store, queue.NewJob{ClipID: clip.ID})

	result, err := h.exec.RunJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	if !result.Success || result.State != jobstate.Done || result.JobID != job.ID {
		t.Fatalf("unexpected result: %+v", result)
	}

	done := h.job(t, job.ID)
	if done.State != jobstate.Done || done.LastGoodState != jobstate.Publishing {
		t.Fatalf("unexpected final job: %+v", done)
	}
	if done.ScriptText != mock.ScriptText {
		t.Fatalf("expected mock script, got %q", done.ScriptText)
	}
	if want := textutil.GeneratedCaption(mock.ScriptText, mock.Hashtags); done.Caption != want {
		t.Fatalf("caption mismatch:\n got %q\nwant %q", done.Caption, want)
	}
	if !strings.HasPrefix(done.PublishMediaID, "dry-") || done.PublishContainerID != done.PublishMediaID {
		t.Fatalf("expected dry-run ids, got container=%q media=%q", done.PublishContainerID, done.PublishMediaID)
	}
	if done.TTSAudioPath == "" || done.RenderedVideoPath == "" || !strings.HasPrefix(done.UploadURL, "mock://storage/") {
		t.Fatalf("artifacts not recorded: %+v", done)
	}

	runs := h.runs(t, job.ID)
	want := append(jobstate.PipelineOrder(), jobstate.Done)
	if len(runs) != len(want) {
		t.Fatalf("expected %d runs, got %d", len(want), len(runs))
	}
	for i, run := range runs {
		if run.To != want[i] {
			t.Fatalf("run %d: got to=%s want %s", i, run.To, want[i])
		}
	}
	if runs[0].From != jobstate.Pending || runs[0].Provider != "" {
		t.Fatalf("first run should leave pending without a provider: %+v", runs[0])
	}
	labels := []string{
		"",
		"script/" + mock.Name,
		"tts/" + mock.Name,
		"renderer/" + mock.Name,
		"storage/" + mock.Name,
		"publisher/" + workflow.DryRunProvider,
	}
	for i, run := range runs {
		if run.Provider != labels[i] {
			t.Fatalf("run %d (%s -> %s): got provider %q want %q", i, run.From, run.To, run.Provider, labels[i])
		}
	}

	clipAfter, err := h.store.GetClip(ctx, clip.ID)
	if err != nil {
		t.Fatalf("GetClip failed: %v", err)
	}
	if clipAfter.Status != queue.ClipUsed {
		t.Fatalf("expected clip marked used, got %s", clipAfter.Status)
	}
	if got := h.events(notifications.EventJobCompleted); len(got) != 1 || got[0].Payload["jobID"] != job.ID {
		t.Fatalf("expected one completion notification, got %+v", got)
	}
}

func TestDryRunRecordWritten(t *testing.T) {
	h := newHarness(t)
	job := testsupport.NewJob(t, h.store, queue.NewJob{ScriptText: "A quick note about tides."})

	if _, err := h.exec.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	data, err := os.ReadFile(h.exec.DryRunPath(job.ID))
	if err != nil {
		t.Fatalf("read dry-run record: %v", err)
	}
	var record workflow.DryRunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decode dry-run record: %v", err)
	}
	done := h.job(t, job.ID)
	if record.Mode != config.PublishModeDry || record.VideoURL != done.UploadURL || record.Caption != done.Caption {
		t.Fatalf("unexpected record: %+v", record)
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z07:00", record.Timestamp); err != nil {
		t.Fatalf("timestamp %q not parseable: %v", record.Timestamp, err)
	}
}

func TestRunJobRecordsStageFailure(t *testing.T) {
	h := newHarness(t, testsupport.WithProviders(testsupport.StubName))
	job := testsupport.NewJob(t, h.store, queue.NewJob{})
	h.stubs.FailAt(providers.KindTTS, errors.New("tts offline"))

	result, err := h.exec.RunJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("stage failure should not be returned as error: %v", err)
	}
	if result.Success || result.State != jobstate.TTS {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !errors.Is(result.Err, workflow.ErrStageFailure) {
		t.Fatalf("expected ErrStageFailure, got %v", result.Err)
	}
	var stageErr *workflow.StageError
	if !errors.As(result.Err, &stageErr) || stageErr.Stage != jobstate.TTS || stageErr.Provider != testsupport.StubName {
		t.Fatalf("unexpected stage error: %#v", result.Err)
	}
	if !strings.Contains(result.Error, "tts offline") {
		t.Fatalf("result error %q missing cause", result.Error)
	}

	failed := h.job(t, job.ID)
	if failed.State != jobstate.Failed || failed.LastGoodState != jobstate.Scripting {
		t.Fatalf("unexpected failed job: state=%s last_good=%s", failed.State, failed.LastGoodState)
	}
	if failed.RetryCount != 1 || !strings.Contains(failed.ErrorMessage, "tts offline") {
		t.Fatalf("failure details not stored: %+v", failed)
	}
	if failed.ScriptText == "" {
		t.Fatal("script text from the completed stage should be kept")
	}

	runs := h.runs(t, job.ID)
	last := runs[len(runs)-1]
	if last.From != jobstate.TTS || last.To != jobstate.Failed || last.Provider != string(jobstate.TTS) {
		t.Fatalf("failure run should name the tts stage: %+v", last)
	}
	if entry := runs[len(runs)-2]; entry.From != jobstate.Scripting || entry.Provider != "script/"+testsupport.StubName {
		t.Fatalf("scripting outcome should carry the script label: %+v", entry)
	}
	if got := h.events(notifications.EventJobFailed); len(got) != 1 || got[0].Payload["stage"] != "tts" {
		t.Fatalf("expected one failure notification for tts, got %+v", got)
	}
}

func TestRetryResumesAfterLastGoodStage(t *testing.T) {
	h := newHarness(t, testsupport.WithProviders(testsupport.StubName))
	ctx := context.Background()
	job := testsupport.NewJob(t, h.store, queue.NewJob{})

	h.stubs.FailAt(providers.KindTTS, errors.New("tts offline"))
	if _, err := h.exec.RunJob(ctx, job.ID); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	h.stubs.FailAt(providers.KindTTS, nil)

	result, err := h.exec.RetryJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("RetryJob failed: %v", err)
	}
	if !result.Success || result.State != jobstate.Done {
		t.Fatalf("unexpected retry result: %+v", result)
	}
	if calls := h.stubs.Calls(providers.KindScript); calls != 1 {
		t.Fatalf("script provider should run once, ran %d times", calls)
	}
	if calls := h.stubs.Calls(providers.KindTTS); calls != 2 {
		t.Fatalf("tts provider should run twice, ran %d times", calls)
	}

	runs := h.runs(t, job.ID)
	resumed := runs[3]
	if resumed.From != jobstate.Failed || resumed.To != jobstate.TTS {
		t.Fatalf("retry should re-enter tts from failed, got %s -> %s", resumed.From, resumed.To)
	}
	if done := h.job(t, job.ID); done.ErrorMessage != "" || done.RetryCount != 1 {
		t.Fatalf("unexpected job after retry: %+v", done)
	}
}

func TestRunJobHaltsOnKillSwitch(t *testing.T) {
	h := newHarness(t)
	job := testsupport.NewJob(t, h.store, queue.NewJob{})
	testsupport.WriteFile(t, h.cfg.Pipeline.KillSwitchPath, 1)

	_, err := h.exec.RunJob(context.Background(), job.ID)
	if !errors.Is(err, workflow.ErrSafetyHalt) {
		t.Fatalf("expected ErrSafetyHalt, got %v", err)
	}
	if !strings.Contains(err.Error(), h.cfg.Pipeline.KillSwitchPath) {
		t.Fatalf("error should name the kill switch path: %v", err)
	}
	if got := h.job(t, job.ID); got.State != jobstate.Pending {
		t.Fatalf("job state changed to %s", got.State)
	}
	if runs := h.runs(t, job.ID); len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
	if got := h.events(notifications.EventSafetyHalt); len(got) != 1 || got[0].Payload["path"] != h.cfg.Pipeline.KillSwitchPath {
		t.Fatalf("expected safety halt notification, got %+v", got)
	}
}

func TestRunJobRejectsWhenQuotaReached(t *testing.T) {
	h := newHarness(t, testsupport.WithQuota(0))
	job := testsupport.NewJob(t, h.store, queue.NewJob{})

	_, err := h.exec.RunJob(context.Background(), job.ID)
	if !errors.Is(err, workflow.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	var quota *workflow.QuotaError
	if !errors.As(err, &quota) || quota.Count != 0 || quota.Limit != 0 {
		t.Fatalf("unexpected quota error: %#v", err)
	}
	if got := h.job(t, job.ID); got.State != jobstate.Pending {
		t.Fatalf("job state changed to %s", got.State)
	}
	if runs := h.runs(t, job.ID); len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}

func TestQuotaCountsJobsDoneToday(t *testing.T) {
	h := newHarness(t, testsupport.WithQuota(1))
	ctx := context.Background()
	first := testsupport.NewJob(t, h.store, queue.NewJob{})
	second := testsupport.NewJob(t, h.store, queue.NewJob{})

	if result, err := h.exec.RunJob(ctx, first.ID); err != nil || !result.Success {
		t.Fatalf("first run failed: %+v %v", result, err)
	}
	count, limit, err := h.exec.Quota(ctx)
	if err != nil {
		t.Fatalf("Quota failed: %v", err)
	}
	if count != 1 || limit != 1 {
		t.Fatalf("expected 1/1, got %d/%d", count, limit)
	}
	var quota *workflow.QuotaError
	if _, err := h.exec.RunJob(ctx, second.ID); !errors.As(err, &quota) || quota.Count != 1 {
		t.Fatalf("expected quota error with count 1, got %v", err)
	}
}

func TestRunJobUsesOperatorScript(t *testing.T) {
	h := newHarness(t, testsupport.WithProviders(testsupport.StubName))
	script := "  Three   things about   tide pools.  "
	job := testsupport.NewJob(t, h.store, queue.NewJob{ScriptText: script})

	if result, err := h.exec.RunJob(context.Background(), job.ID); err != nil || !result.Success {
		t.Fatalf("RunJob failed: %+v %v", result, err)
	}
	if calls := h.stubs.Calls(providers.KindScript); calls != 0 {
		t.Fatalf("script provider should not run for an operator script, ran %d times", calls)
	}
	done := h.job(t, job.ID)
	if done.Caption != textutil.ManualCaption(script) {
		t.Fatalf("unexpected caption %q", done.Caption)
	}
	if runs := h.runs(t, job.ID); runs[1].Provider != "script/"+workflow.ManualProvider {
		t.Fatalf("expected manual script label on scripting outcome, got %q", runs[1].Provider)
	}
}

func TestRunJobKeepsOperatorCaption(t *testing.T) {
	h := newHarness(t)
	job := testsupport.NewJob(t, h.store, queue.NewJob{Caption: "hand written #caption"})

	if _, err := h.exec.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	if got := h.job(t, job.ID).Caption; got != "hand written #caption" {
		t.Fatalf("caption overwritten: %q", got)
	}
}

func TestLivePublishUsesPublisher(t *testing.T) {
	h := newHarness(t, testsupport.WithPublishMode(config.PublishModeLive))
	job := testsupport.NewJob(t, h.store, queue.NewJob{})

	if result, err := h.exec.RunJob(context.Background(), job.ID); err != nil || !result.Success {
		t.Fatalf("RunJob failed: %+v %v", result, err)
	}
	done := h.job(t, job.ID)
	if !strings.HasPrefix(done.PublishContainerID, "mock-container-") || !strings.HasPrefix(done.PublishMediaID, "mock-media-") {
		t.Fatalf("unexpected publish ids: %+v", done)
	}
	if _, err := os.Stat(h.exec.DryRunPath(job.ID)); !os.IsNotExist(err) {
		t.Fatalf("live publish should not write a dry-run record, stat err=%v", err)
	}
}

func TestUnknownProviderIsStageFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.store.SetConfig(ctx, "provider.tts", "nope"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	job := testsupport.NewJob(t, h.store, queue.NewJob{})

	result, err := h.exec.RunJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	if result.State != jobstate.TTS || !errors.Is(result.Err, providers.ErrProviderNotFound) {
		t.Fatalf("expected provider-not-found at tts, got %+v", result)
	}
	var stageErr *workflow.StageError
	if !errors.As(result.Err, &stageErr) || stageErr.Provider != "nope" {
		t.Fatalf("stage error should name the configured provider, got %#v", result.Err)
	}
	runs := h.runs(t, job.ID)
	if last := runs[len(runs)-1]; last.Provider != string(jobstate.TTS) {
		t.Fatalf("failure run should name the tts stage, got %q", last.Provider)
	}
}

func TestRunnableAndRetryableStates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := testsupport.NewJob(t, h.store, queue.NewJob{})

	if _, err := h.exec.RetryJob(ctx, job.ID); !errors.Is(err, workflow.ErrNotRetryable) {
		t.Fatalf("retry of pending job: expected ErrNotRetryable, got %v", err)
	}
	if _, err := h.exec.RunJob(ctx, job.ID); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	if _, err := h.exec.RunJob(ctx, job.ID); !errors.Is(err, workflow.ErrNotRunnable) {
		t.Fatalf("run of done job: expected ErrNotRunnable, got %v", err)
	}
	if _, err := h.exec.RequeueJob(ctx, job.ID); !errors.Is(err, workflow.ErrNotRetryable) {
		t.Fatalf("requeue of done job: expected ErrNotRetryable, got %v", err)
	}
	if _, err := h.exec.RunJob(ctx, "missing"); !errors.Is(err, workflow.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRequeueRestartsFromScripting(t *testing.T) {
	h := newHarness(t, testsupport.WithProviders(testsupport.StubName))
	ctx := context.Background()
	job := testsupport.NewJob(t, h.store, queue.NewJob{})

	h.stubs.FailAt(providers.KindRenderer, errors.New("render crashed"))
	if _, err := h.exec.RunJob(ctx, job.ID); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	h.stubs.FailAt(providers.KindRenderer, nil)

	pending, err := h.exec.RequeueJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequeueJob failed: %v", err)
	}
	if pending.State != jobstate.Pending || pending.LastGoodState != "" {
		t.Fatalf("unexpected requeued job: state=%s last_good=%q", pending.State, pending.LastGoodState)
	}

	if result, err := h.exec.RunJob(ctx, job.ID); err != nil || !result.Success {
		t.Fatalf("RunJob after requeue failed: %+v %v", result, err)
	}
	if calls := h.stubs.Calls(providers.KindTTS); calls != 2 {
		t.Fatalf("tts should rerun after requeue, ran %d times", calls)
	}
	if calls := h.stubs.Calls(providers.KindScript); calls != 1 {
		t.Fatalf("stored script should be reused, script provider ran %d times", calls)
	}
	runs := h.runs(t, job.ID)
	var requeue *queue.Run
	for _, run := range runs {
		if run.From == jobstate.Failed && run.To == jobstate.Pending {
			requeue = run
		}
	}
	if requeue == nil || requeue.Provider != "operator" {
		t.Fatalf("expected operator requeue run, got %+v", requeue)
	}
}

func TestRecoverResumesInterruptedJob(t *testing.T) {
	h := newHarness(t, testsupport.WithProviders(testsupport.StubName))
	ctx := context.Background()
	job := testsupport.NewJob(t, h.store, queue.NewJob{ScriptText: "resume me"})

	for _, to := range []jobstate.State{jobstate.Scripting, jobstate.TTS, jobstate.Rendering} {
		if _, err := h.store.TransitionJob(ctx, job.ID, queue.Transition{To: to}); err != nil {
			t.Fatalf("TransitionJob(%s) failed: %v", to, err)
		}
	}
	audio := filepath.Join(h.cfg.Paths.WorkDir, "speech.wav")
	testsupport.WriteFile(t, audio, 44)
	lastGood := jobstate.TTS
	if err := h.store.UpdateJobFields(ctx, job.ID, queue.JobUpdate{TTSAudioPath: &audio, LastGoodState: &lastGood}); err != nil {
		t.Fatalf("UpdateJobFields failed: %v", err)
	}

	recovered, err := h.exec.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(recovered) != 1 || recovered[0].State != jobstate.Failed || recovered[0].ErrorMessage != queue.InterruptedReason {
		t.Fatalf("unexpected recovered jobs: %+v", recovered)
	}

	if result, err := h.exec.RetryJob(ctx, job.ID); err != nil || !result.Success {
		t.Fatalf("RetryJob failed: %+v %v", result, err)
	}
	if calls := h.stubs.Calls(providers.KindTTS); calls != 0 {
		t.Fatalf("tts should not rerun, ran %d times", calls)
	}
	if calls := h.stubs.Calls(providers.KindRenderer); calls != 1 {
		t.Fatalf("renderer should run once, ran %d times", calls)
	}
}

func TestDayBounds(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	tests := []struct {
		name      string
		at        time.Time
		loc       *time.Location
		wantStart time.Time
	}{
		{
			name:      "utc",
			at:        time.Date(2024, 3, 5, 13, 30, 0, 0, time.UTC),
			loc:       time.UTC,
			wantStart: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "previous local day",
			at:        time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC),
			loc:       ny,
			wantStart: time.Date(2024, 3, 4, 0, 0, 0, 0, ny),
		},
		{
			name:      "nil location",
			at:        time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC),
			wantStart: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := workflow.DayBounds(tt.at, tt.loc)
			if !start.Equal(tt.wantStart) {
				t.Fatalf("start = %s, want %s", start, tt.wantStart)
			}
			if !end.Equal(tt.wantStart.AddDate(0, 0, 1)) {
				t.Fatalf("end = %s, want next midnight", end)
			}
		})
	}
}
