package queue

import (
	"errors"
	"time"

	"nator/internal/jobstate"
)

// ClipStatus tracks whether a clip has been consumed by a completed job.
type ClipStatus string

const (
	ClipAvailable ClipStatus = "available"
	ClipUsed      ClipStatus = "used"
)

// InterruptedReason is the error recorded on jobs found mid-stage at startup.
const InterruptedReason = "interrupted"

var (
	// ErrNotFound reports a missing job or clip on a mutating call.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateClip reports an ingest of a path that is already recorded.
	ErrDuplicateClip = errors.New("clip already ingested")
)

// Clip is a source media file available to the pipeline.
type Clip struct {
	ID           string
	FilePath     string
	SizeBytes    int64
	DurationSecs float64
	Status       ClipStatus
	IngestedAt   time.Time
}

// NewClip describes a clip to ingest.
type NewClip struct {
	FilePath     string
	SizeBytes    int64
	DurationSecs float64
}

// Job is one unit of pipeline work.
type Job struct {
	ID                 string
	ClipID             string
	State              jobstate.State
	LastGoodState      jobstate.State
	ErrorMessage       string
	ScriptText         string
	Caption            string
	TTSAudioPath       string
	RenderedVideoPath  string
	UploadURL          string
	PublishContainerID string
	PublishMediaID     string
	RetryCount         int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewJob carries the optional inputs accepted when creating a job.
type NewJob struct {
	ClipID     string
	Caption    string
	ScriptText string
}

// JobUpdate lists artifact fields to overwrite. Nil pointers are left untouched.
type JobUpdate struct {
	ScriptText         *string
	Caption            *string
	TTSAudioPath       *string
	RenderedVideoPath  *string
	UploadURL          *string
	PublishContainerID *string
	PublishMediaID     *string
	LastGoodState      *jobstate.State
}

// Empty reports whether the update changes nothing.
func (u JobUpdate) Empty() bool {
	return u.ScriptText == nil && u.Caption == nil && u.TTSAudioPath == nil &&
		u.RenderedVideoPath == nil && u.UploadURL == nil && u.PublishContainerID == nil &&
		u.PublishMediaID == nil && u.LastGoodState == nil
}

// Merge returns u with every field set in other applied on top.
func (u JobUpdate) Merge(other JobUpdate) JobUpdate {
	pick := func(a, b *string) *string {
		if b != nil {
			return b
		}
		return a
	}
	u.ScriptText = pick(u.ScriptText, other.ScriptText)
	u.Caption = pick(u.Caption, other.Caption)
	u.TTSAudioPath = pick(u.TTSAudioPath, other.TTSAudioPath)
	u.RenderedVideoPath = pick(u.RenderedVideoPath, other.RenderedVideoPath)
	u.UploadURL = pick(u.UploadURL, other.UploadURL)
	u.PublishContainerID = pick(u.PublishContainerID, other.PublishContainerID)
	u.PublishMediaID = pick(u.PublishMediaID, other.PublishMediaID)
	if other.LastGoodState != nil {
		u.LastGoodState = other.LastGoodState
	}
	return u
}

// Transition is a requested state change plus its audit details.
type Transition struct {
	To       jobstate.State
	Provider string
	Duration time.Duration
	Error    string
	Update   JobUpdate
}

// Run is an immutable audit record of one transition.
type Run struct {
	ID         string
	JobID      string
	From       jobstate.State
	To         jobstate.State
	Provider   string
	DurationMS int64
	Error      string
	CreatedAt  time.Time
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	State jobstate.State
	Limit int
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	TotalJobs        int
	TotalClips       int
	Error            string
}

// HealthSummary aggregates job counts for status output.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Done       int
}

// Ptr is a convenience for building JobUpdate values.
func Ptr[T any](v T) *T { return &v }
