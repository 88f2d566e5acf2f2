package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"nator/internal/config"
	"nator/internal/jobstate"
	"nator/internal/providers"
	"nator/internal/queue"
	"nator/internal/textutil"
)

const (
	// ManualProvider is recorded when a job carries operator-written script text.
	ManualProvider = "manual"
	// DryRunProvider is recorded when publishing only writes a local record.
	DryRunProvider = "dry-run"

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// jobContext is the artifact set accumulated by the stages of one run.
// Stages read it and return updates; they never mutate it.
type jobContext struct {
	JobID      string
	ClipPath   string
	ScriptText string
	Caption    string
	AudioPath  string
	VideoPath  string
	UploadURL  string
}

func newJobContext(job *queue.Job, clipPath string) jobContext {
	return jobContext{
		JobID:      job.ID,
		ClipPath:   clipPath,
		ScriptText: job.ScriptText,
		Caption:    job.Caption,
		AudioPath:  job.TTSAudioPath,
		VideoPath:  job.RenderedVideoPath,
		UploadURL:  job.UploadURL,
	}
}

// with returns a copy of c with every field set in u applied.
func (c jobContext) with(u queue.JobUpdate) jobContext {
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&c.ScriptText, u.ScriptText)
	apply(&c.Caption, u.Caption)
	apply(&c.AudioPath, u.TTSAudioPath)
	apply(&c.VideoPath, u.RenderedVideoPath)
	apply(&c.UploadURL, u.UploadURL)
	return c
}

// stageOutput is what a stage hands back: the provider that did the work
// and the job fields it produced.
type stageOutput struct {
	Provider string
	Update   queue.JobUpdate
}

type stageFunc func(ctx context.Context, jc jobContext) (stageOutput, error)

var stageKinds = map[jobstate.State]providers.Kind{
	jobstate.Scripting:  providers.KindScript,
	jobstate.TTS:        providers.KindTTS,
	jobstate.Rendering:  providers.KindRenderer,
	jobstate.Uploading:  providers.KindStorage,
	jobstate.Publishing: providers.KindPublisher,
}

// runLabel is the audit label for a completed stage: the capability kind,
// followed by the implementation name when one is known ("tts/edge").
func runLabel(stage jobstate.State, provider string) string {
	kind, ok := stageKinds[stage]
	if !ok {
		return string(stage)
	}
	if provider == "" {
		return string(kind)
	}
	return string(kind) + "/" + provider
}

func (e *Executor) stageFor(s jobstate.State) (stageFunc, error) {
	switch s {
	case jobstate.Scripting:
		return e.runScripting, nil
	case jobstate.TTS:
		return e.runTTS, nil
	case jobstate.Rendering:
		return e.runRendering, nil
	case jobstate.Uploading:
		return e.runUploading, nil
	case jobstate.Publishing:
		return e.runPublishing, nil
	default:
		return nil, fmt.Errorf("no stage logic for state %q", s)
	}
}

// runScripting uses operator-supplied text when present; otherwise it asks
// the script provider. An operator-supplied caption is never replaced.
func (e *Executor) runScripting(ctx context.Context, jc jobContext) (stageOutput, error) {
	if strings.TrimSpace(jc.ScriptText) != "" {
		out := stageOutput{Provider: ManualProvider}
		if strings.TrimSpace(jc.Caption) == "" {
			out.Update.Caption = queue.Ptr(textutil.ManualCaption(jc.ScriptText))
		}
		return out, nil
	}

	scripter, name, err := e.registry.Scripter(ctx)
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	script, err := scripter.Generate(ctx, jc.ClipPath)
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	text := strings.TrimSpace(script.Text)
	if text == "" {
		return stageOutput{Provider: name}, errors.New("script provider returned no text")
	}
	out := stageOutput{Provider: name, Update: queue.JobUpdate{ScriptText: queue.Ptr(text)}}
	if strings.TrimSpace(jc.Caption) == "" {
		out.Update.Caption = queue.Ptr(textutil.GeneratedCaption(text, script.Hashtags))
	}
	return out, nil
}

func (e *Executor) runTTS(ctx context.Context, jc jobContext) (stageOutput, error) {
	if strings.TrimSpace(jc.ScriptText) == "" {
		return stageOutput{}, errors.New("no script text to synthesize")
	}
	synth, name, err := e.registry.Synthesizer(ctx)
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	speech, err := synth.Synthesize(ctx, jc.ScriptText, e.workDir(jc.JobID))
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	return stageOutput{Provider: name, Update: queue.JobUpdate{TTSAudioPath: queue.Ptr(speech.AudioPath)}}, nil
}

func (e *Executor) runRendering(ctx context.Context, jc jobContext) (stageOutput, error) {
	renderer, name, err := e.registry.Renderer(ctx)
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	video, err := renderer.Render(ctx, providers.RenderInput{
		ClipPath:   jc.ClipPath,
		AudioPath:  jc.AudioPath,
		ScriptText: jc.ScriptText,
	}, e.outputDir(jc.JobID))
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	return stageOutput{Provider: name, Update: queue.JobUpdate{RenderedVideoPath: queue.Ptr(video.VideoPath)}}, nil
}

func (e *Executor) runUploading(ctx context.Context, jc jobContext) (stageOutput, error) {
	if strings.TrimSpace(jc.VideoPath) == "" {
		return stageOutput{}, errors.New("no rendered video to upload")
	}
	uploader, name, err := e.registry.Uploader(ctx)
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	upload, err := uploader.Upload(ctx, jc.VideoPath)
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	return stageOutput{Provider: name, Update: queue.JobUpdate{UploadURL: queue.Ptr(upload.URL)}}, nil
}

// runPublishing writes a local dry-run record unless the publish mode is
// live, in which case the publisher's two-phase protocol runs.
func (e *Executor) runPublishing(ctx context.Context, jc jobContext) (stageOutput, error) {
	mode, err := e.settings.Get(ctx, keyPublish)
	if err != nil {
		return stageOutput{}, err
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != config.PublishModeLive {
		return e.dryPublish(jc, mode)
	}

	publisher, name, err := e.registry.Publisher(ctx)
	if err != nil {
		return stageOutput{Provider: name}, err
	}
	containerID, err := publisher.CreateContainer(ctx, providers.ContainerRequest{VideoURL: jc.UploadURL, Caption: jc.Caption})
	if err != nil {
		return stageOutput{Provider: name}, fmt.Errorf("create container: %w", err)
	}
	mediaID, err := publisher.PublishContainer(ctx, containerID)
	if err != nil {
		out := stageOutput{Provider: name, Update: queue.JobUpdate{PublishContainerID: queue.Ptr(containerID)}}
		return out, fmt.Errorf("publish container %s: %w", containerID, err)
	}
	return stageOutput{Provider: name, Update: queue.JobUpdate{
		PublishContainerID: queue.Ptr(containerID),
		PublishMediaID:     queue.Ptr(mediaID),
	}}, nil
}

// DryRunRecord is written to <output_dir>/dry-<job id>.json in dry mode.
type DryRunRecord struct {
	Mode      string `json:"mode"`
	VideoURL  string `json:"videoUrl"`
	Caption   string `json:"caption"`
	Timestamp string `json:"timestamp"`
}

// DryRunPath returns the dry-run record location for jobID.
func (e *Executor) DryRunPath(jobID string) string {
	return filepath.Join(e.cfg.Paths.OutputDir, "dry-"+jobID+".json")
}

func (e *Executor) dryPublish(jc jobContext, mode string) (stageOutput, error) {
	if mode == "" {
		mode = config.PublishModeDry
	}
	now := e.now()
	record := DryRunRecord{
		Mode:      mode,
		VideoURL:  jc.UploadURL,
		Caption:   jc.Caption,
		Timestamp: now.UTC().Format(isoMillis),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return stageOutput{Provider: DryRunProvider}, fmt.Errorf("encode dry-run record: %w", err)
	}
	path := e.DryRunPath(jc.JobID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return stageOutput{Provider: DryRunProvider}, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return stageOutput{Provider: DryRunProvider}, fmt.Errorf("write dry-run record: %w", err)
	}
	id := "dry-" + strconv.FormatInt(now.UnixNano(), 10)
	return stageOutput{Provider: DryRunProvider, Update: queue.JobUpdate{
		PublishContainerID: queue.Ptr(id),
		PublishMediaID:     queue.Ptr(id),
	}}, nil
}

func (e *Executor) workDir(jobID string) string {
	return filepath.Join(e.cfg.Paths.WorkDir, jobID)
}

func (e *Executor) outputDir(jobID string) string {
	return filepath.Join(e.cfg.Paths.OutputDir, jobID)
}
