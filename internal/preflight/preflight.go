package preflight

import (
	"context"
	"fmt"

	"nator/internal/config"
	"nator/internal/deps"
	"nator/internal/providers"
	"nator/internal/queue"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Group    string
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Failed reports whether the result should fail the report.
func (r Result) Failed() bool {
	return !r.Passed && !r.Optional
}

// Gates exposes the run gates. *workflow.Executor satisfies it.
type Gates interface {
	KillSwitch(ctx context.Context) (string, bool, error)
	Quota(ctx context.Context) (int, int, error)
}

// Checker runs every doctor check against one configuration.
type Checker struct {
	Config   *config.Config
	Store    *queue.Store
	Registry *providers.Registry
	Settings Settings
	Gates    Gates
}

// RunAll executes every check in display order.
func (c Checker) RunAll(ctx context.Context) []Result {
	if c.Config == nil {
		return nil
	}
	var results []Result
	for _, dir := range []struct{ name, path string }{
		{"Data directory", c.Config.Paths.DataDir},
		{"Work directory", c.Config.Paths.WorkDir},
		{"Output directory", c.Config.Paths.OutputDir},
		{"Log directory", c.Config.Paths.LogDir},
	} {
		r := CheckDirectoryAccess(dir.name, dir.path)
		r.Group = "paths"
		results = append(results, r)
	}
	if c.Store != nil {
		results = append(results, CheckDatabase(ctx, c.Store))
	}

	active := map[providers.Kind]string{}
	if c.Registry != nil {
		for _, kind := range providers.Kinds() {
			name, err := c.Registry.ActiveName(ctx, kind)
			if err != nil {
				results = append(results, Result{Group: "providers", Name: string(kind), Detail: err.Error()})
				continue
			}
			active[kind] = name
		}
	}

	binaries := deps.CheckBinaries(deps.Requirements(c.Config, deps.ActiveProviders{
		TTS:      active[providers.KindTTS],
		Renderer: active[providers.KindRenderer],
		Storage:  active[providers.KindStorage],
	}))
	for _, status := range binaries {
		results = append(results, binaryResult(status))
	}

	if c.Settings != nil {
		mode, err := c.Settings.Get(ctx, "pipeline.publish_mode")
		if err != nil {
			results = append(results, Result{Group: "credentials", Name: "publish mode", Detail: err.Error()})
		} else {
			results = append(results, CheckCredentials(ctx, c.Settings, active, mode)...)
		}
	}
	if c.Gates != nil {
		results = append(results, CheckKillSwitch(ctx, c.Gates), CheckQuota(ctx, c.Gates))
	}
	if c.Registry != nil {
		results = append(results, CheckProviders(ctx, c.Registry)...)
	}
	return results
}

// Passed reports whether no required check failed.
func Passed(results []Result) bool {
	for _, r := range results {
		if r.Failed() {
			return false
		}
	}
	return true
}

func binaryResult(status deps.Status) Result {
	r := Result{
		Group:    "binaries",
		Name:     status.Name,
		Passed:   status.Available,
		Optional: status.Optional,
		Detail:   status.Command,
	}
	if !status.Available {
		r.Detail = status.Detail
		if status.Description != "" {
			r.Detail = fmt.Sprintf("%s (%s)", status.Detail, status.Description)
		}
	}
	return r
}
