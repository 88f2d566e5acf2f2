package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nator/internal/jobstate"
	"nator/internal/queue"
)

// jobView is the JSON shape of a job.
type jobView struct {
	ID                 string    `json:"id"`
	ClipID             string    `json:"clip_id,omitempty"`
	State              string    `json:"state"`
	LastGoodState      string    `json:"last_good_state,omitempty"`
	Error              string    `json:"error,omitempty"`
	Caption            string    `json:"caption,omitempty"`
	ScriptText         string    `json:"script_text,omitempty"`
	TTSAudioPath       string    `json:"tts_audio_path,omitempty"`
	RenderedVideoPath  string    `json:"rendered_video_path,omitempty"`
	UploadURL          string    `json:"upload_url,omitempty"`
	PublishContainerID string    `json:"publish_container_id,omitempty"`
	PublishMediaID     string    `json:"publish_media_id,omitempty"`
	RetryCount         int       `json:"retry_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Runs               []runView `json:"runs,omitempty"`
}

type runView struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Provider   string    `json:"provider,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toJobView(job *queue.Job, runs []*queue.Run) jobView {
	view := jobView{
		ID:                 job.ID,
		ClipID:             job.ClipID,
		State:              string(job.State),
		LastGoodState:      string(job.LastGoodState),
		Error:              job.ErrorMessage,
		Caption:            job.Caption,
		ScriptText:         job.ScriptText,
		TTSAudioPath:       job.TTSAudioPath,
		RenderedVideoPath:  job.RenderedVideoPath,
		UploadURL:          job.UploadURL,
		PublishContainerID: job.PublishContainerID,
		PublishMediaID:     job.PublishMediaID,
		RetryCount:         job.RetryCount,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}
	for _, r := range runs {
		view.Runs = append(view.Runs, runView{
			From:       string(r.From),
			To:         string(r.To),
			Provider:   r.Provider,
			DurationMS: r.DurationMS,
			Error:      r.Error,
			CreatedAt:  r.CreatedAt,
		})
	}
	return view
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var stateFlag string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.JobFilter{Limit: limit}
			if s := strings.TrimSpace(stateFlag); s != "" {
				state, err := jobstate.Parse(strings.ToLower(s))
				if err != nil {
					return err
				}
				filter.State = state
			}
			return ctx.withRuntime(func(rt *runtime) error {
				jobs, err := rt.store.ListJobs(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]jobView, 0, len(jobs))
					for _, job := range jobs {
						views = append(views, toJobView(job, nil))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					detail := truncate(job.Caption, 40)
					if job.State == jobstate.Failed {
						detail = truncate(job.ErrorMessage, 40)
					}
					rows = append(rows, []string{
						job.ID,
						stateLabel(job.State),
						stateLabel(job.LastGoodState),
						strconv.Itoa(job.RetryCount),
						formatTime(job.UpdatedAt),
						dash(detail),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "State", "Last good", "Retries", "Updated", "Caption / error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stateFlag, "state", "", "Only show jobs in this state")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job with its transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				id := strings.TrimSpace(args[0])
				job, err := rt.store.GetJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", id)
				}
				runs, err := rt.store.Runs(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, toJobView(job, runs))
				}
				printJob(cmd, job, runs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func printJob(cmd *cobra.Command, job *queue.Job, runs []*queue.Run) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader("Job "+job.ID, colorize))
	fmt.Fprintln(out, renderStatusLine("State", stateKind(job.State), stateLabel(job.State), colorize))
	fields := []struct{ label, value string }{
		{"Last good", stateLabel(job.LastGoodState)},
		{"Clip", dash(job.ClipID)},
		{"Retries", strconv.Itoa(job.RetryCount)},
		{"Created", formatTime(job.CreatedAt)},
		{"Updated", formatTime(job.UpdatedAt)},
		{"Audio", dash(job.TTSAudioPath)},
		{"Video", dash(job.RenderedVideoPath)},
		{"Upload URL", dash(job.UploadURL)},
		{"Container", dash(job.PublishContainerID)},
		{"Media", dash(job.PublishMediaID)},
	}
	for _, f := range fields {
		fmt.Fprintln(out, renderStatusLine(f.label, statusInfo, f.value, false))
	}
	if job.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, job.ErrorMessage, colorize))
	}
	if job.Caption != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Caption:")
		fmt.Fprintln(out, job.Caption)
	}

	if len(runs) == 0 {
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			formatTime(r.CreatedAt),
			stateLabel(r.From) + " -> " + stateLabel(r.To),
			dash(r.Provider),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			dash(truncate(r.Error, 50)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"At", "Transition", "Provider", "Took", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func newClipsCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "clips",
		Short: "List ingested clips",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := queue.ClipStatus(strings.ToLower(strings.TrimSpace(statusFlag)))
			switch status {
			case "", queue.ClipAvailable, queue.ClipUsed:
			default:
				return fmt.Errorf("unknown clip status %q (want available or used)", statusFlag)
			}
			return ctx.withRuntime(func(rt *runtime) error {
				clips, err := rt.store.ListClips(cmd.Context(), status, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(clips) == 0 {
					fmt.Fprintln(out, "No clips")
					return nil
				}
				rows := make([][]string, 0, len(clips))
				for _, clip := range clips {
					duration := "-"
					if clip.DurationSecs > 0 {
						duration = strconv.FormatFloat(clip.DurationSecs, 'f', 1, 64) + "s"
					}
					rows = append(rows, []string{
						clip.ID,
						string(clip.Status),
						duration,
						strconv.FormatInt(clip.SizeBytes, 10),
						formatTime(clip.IngestedAt),
						clip.FilePath,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Status", "Duration", "Bytes", "Ingested", "Path"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Only show clips with this status (available or used)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of clips (0 for all)")
	return cmd
}
