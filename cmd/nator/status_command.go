package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nator/internal/config"
	"nator/internal/jobstate"
	"nator/internal/providers"
	"nator/internal/queue"
)

type statusReport struct {
	Jobs        map[string]int    `json:"jobs"`
	Clips       map[string]int    `json:"clips"`
	PublishMode string            `json:"publish_mode"`
	Halted      bool              `json:"halted"`
	KillSwitch  string            `json:"kill_switch"`
	PostedToday int               `json:"posted_today"`
	DailyLimit  int               `json:"daily_limit"`
	Providers   map[string]string `json:"providers"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the queue, safety gates, and active providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				report, err := collectStatus(cmd, rt)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, report)
				}
				printStatus(cmd, report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func collectStatus(cmd *cobra.Command, rt *runtime) (statusReport, error) {
	c := cmd.Context()
	report := statusReport{
		Jobs:      map[string]int{},
		Clips:     map[string]int{},
		Providers: map[string]string{},
	}

	stats, err := rt.store.Stats(c)
	if err != nil {
		return report, err
	}
	for _, s := range jobstate.All() {
		report.Jobs[string(s)] = stats[s]
	}
	clips, err := rt.store.ClipStats(c)
	if err != nil {
		return report, err
	}
	for _, s := range []queue.ClipStatus{queue.ClipAvailable, queue.ClipUsed} {
		report.Clips[string(s)] = clips[s]
	}

	if report.PublishMode, err = rt.settings.Get(c, "pipeline.publish_mode"); err != nil {
		return report, err
	}
	if report.KillSwitch, report.Halted, err = rt.executor.KillSwitch(c); err != nil {
		return report, err
	}
	if report.PostedToday, report.DailyLimit, err = rt.executor.Quota(c); err != nil {
		return report, err
	}
	for _, kind := range providers.Kinds() {
		name, err := rt.registry.ActiveName(c, kind)
		if err != nil {
			return report, err
		}
		report.Providers[string(kind)] = name
	}
	return report, nil
}

func printStatus(cmd *cobra.Command, r statusReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader("Jobs", colorize))
	rows := make([][]string, 0, len(r.Jobs))
	for _, s := range jobstate.All() {
		rows = append(rows, []string{stateLabel(s), strconv.Itoa(r.Jobs[string(s)])})
	}
	fmt.Fprintln(out, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

	fmt.Fprintln(out, renderSectionHeader("Safety", colorize))
	if r.Halted {
		fmt.Fprintln(out, renderStatusLine("Kill switch", statusError, "engaged ("+r.KillSwitch+")", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Kill switch", statusOK, "clear", colorize))
	}
	quotaKind := statusOK
	if r.PostedToday >= r.DailyLimit {
		quotaKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Posted today", quotaKind, fmt.Sprintf("%d/%d", r.PostedToday, r.DailyLimit), colorize))
	modeKind := statusInfo
	if strings.EqualFold(r.PublishMode, config.PublishModeLive) {
		modeKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Publish mode", modeKind, r.PublishMode, colorize))
	fmt.Fprintln(out, renderStatusLine("Clips", statusInfo,
		fmt.Sprintf("%d available, %d used", r.Clips[string(queue.ClipAvailable)], r.Clips[string(queue.ClipUsed)]), colorize))

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Providers", colorize))
	for _, kind := range providers.Kinds() {
		fmt.Fprintln(out, renderStatusLine(string(kind), statusInfo, r.Providers[string(kind)], colorize))
	}
}
