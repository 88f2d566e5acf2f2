package queue

import (
	"database/sql"
	"errors"
	"time"

	"nator/internal/jobstate"
)

// timeLayout is fixed width so stored strings sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const jobColumns = "id, clip_id, state, last_good_state, error_message, script_text, tts_audio_path, rendered_video_path, upload_url, publish_container_id, publish_media_id, caption, retry_count, created_at, updated_at"

const clipColumns = "id, file_path, size_bytes, duration_secs, status, ingested_at"

const runColumns = "id, job_id, state_from, state_to, provider, duration_ms, error, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job          Job
		clipID       sql.NullString
		state        string
		lastGood     sql.NullString
		errorMessage sql.NullString
		scriptText   sql.NullString
		audioPath    sql.NullString
		videoPath    sql.NullString
		uploadURL    sql.NullString
		containerID  sql.NullString
		mediaID      sql.NullString
		caption      sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&job.ID,
		&clipID,
		&state,
		&lastGood,
		&errorMessage,
		&scriptText,
		&audioPath,
		&videoPath,
		&uploadURL,
		&containerID,
		&mediaID,
		&caption,
		&job.RetryCount,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.ClipID = clipID.String
	job.State = jobstate.State(state)
	job.LastGoodState = jobstate.State(lastGood.String)
	job.ErrorMessage = errorMessage.String
	job.ScriptText = scriptText.String
	job.TTSAudioPath = audioPath.String
	job.RenderedVideoPath = videoPath.String
	job.UploadURL = uploadURL.String
	job.PublishContainerID = containerID.String
	job.PublishMediaID = mediaID.String
	job.Caption = caption.String
	if created, err := parseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func scanClip(scanner rowScanner) (*Clip, error) {
	var (
		clip        Clip
		duration    sql.NullFloat64
		status      string
		ingestedRaw string
	)
	if err := scanner.Scan(&clip.ID, &clip.FilePath, &clip.SizeBytes, &duration, &status, &ingestedRaw); err != nil {
		return nil, err
	}
	clip.DurationSecs = duration.Float64
	clip.Status = ClipStatus(status)
	if ingested, err := parseTime(ingestedRaw); err == nil {
		clip.IngestedAt = ingested
	}
	return &clip, nil
}

func scanRun(scanner rowScanner) (*Run, error) {
	var (
		run        Run
		from, to   string
		provider   sql.NullString
		errText    sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&run.ID, &run.JobID, &from, &to, &provider, &run.DurationMS, &errText, &createdRaw); err != nil {
		return nil, err
	}
	run.From = jobstate.State(from)
	run.To = jobstate.State(to)
	run.Provider = provider.String
	run.Error = errText.String
	if created, err := parseTime(createdRaw); err == nil {
		run.CreatedAt = created
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
