package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"nator/internal/config"
	"nator/internal/providers"
	"nator/internal/queue"
)

const healthTimeout = 15 * time.Second

// Settings resolves config keys for the credential checks.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
}

// credentialKeys lists the keys each provider cannot run without.
var credentialKeys = map[providers.Kind]map[string][]string{
	providers.KindScript:    {"openai": {"openai.api_key"}},
	providers.KindStorage:   {"r2": {"r2.account_id", "r2.access_key_id", "r2.secret_access_key", "r2.bucket", "r2.public_base_url"}},
	providers.KindPublisher: {"instagram": {"ig.access_token", "ig.user_id"}},
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase pings the store and verifies its schema.
func CheckDatabase(ctx context.Context, store *queue.Store) Result {
	r := Result{Group: "database", Name: "Job database"}
	health, err := store.CheckHealth(ctx)
	switch {
	case err != nil:
		r.Detail = err.Error()
	case len(health.MissingTables) > 0:
		r.Detail = "missing tables: " + strings.Join(health.MissingTables, ", ")
	case !health.IntegrityCheck:
		r.Detail = "integrity check failed"
	default:
		r.Passed = true
		r.Detail = fmt.Sprintf("%s (schema v%d, %d jobs, %d clips)", health.DBPath, health.SchemaVersion, health.TotalJobs, health.TotalClips)
	}
	return r
}

// CheckCredentials reports missing keys for the active providers. Publisher
// credentials only matter in live mode.
func CheckCredentials(ctx context.Context, settings Settings, active map[providers.Kind]string, mode string) []Result {
	live := strings.EqualFold(strings.TrimSpace(mode), config.PublishModeLive)
	var results []Result
	for _, kind := range providers.Kinds() {
		keys := credentialKeys[kind][active[kind]]
		if len(keys) == 0 {
			continue
		}
		r := Result{
			Group:    "credentials",
			Name:     fmt.Sprintf("%s/%s", kind, active[kind]),
			Optional: kind == providers.KindPublisher && !live,
		}
		var missing []string
		for _, key := range keys {
			value, err := settings.Get(ctx, key)
			if err != nil || strings.TrimSpace(value) == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) == 0 {
			r.Passed = true
			r.Detail = "configured"
		} else {
			r.Detail = "missing " + strings.Join(missing, ", ")
		}
		results = append(results, r)
	}
	if live && active[providers.KindPublisher] == providers.DefaultName {
		results = append(results, Result{
			Group:    "credentials",
			Name:     "publish mode",
			Optional: true,
			Detail:   "live mode with the mock publisher publishes nothing",
		})
	}
	return results
}

// CheckKillSwitch passes when the sentinel file is absent.
func CheckKillSwitch(ctx context.Context, gates Gates) Result {
	r := Result{Group: "safety", Name: "Kill switch"}
	path, halted, err := gates.KillSwitch(ctx)
	switch {
	case err != nil:
		r.Detail = err.Error()
	case halted:
		r.Detail = fmt.Sprintf("active, remove %s to continue", path)
	case path == "":
		r.Passed = true
		r.Detail = "not configured"
	default:
		r.Passed = true
		r.Detail = fmt.Sprintf("clear (%s)", path)
	}
	return r
}

// CheckQuota reports today's published count. Reaching the limit is not a
// configuration problem, so the check is optional.
func CheckQuota(ctx context.Context, gates Gates) Result {
	r := Result{Group: "safety", Name: "Daily quota", Optional: true}
	count, limit, err := gates.Quota(ctx)
	if err != nil {
		r.Optional = false
		r.Detail = err.Error()
		return r
	}
	r.Passed = count < limit
	r.Detail = fmt.Sprintf("%d/%d published today", count, limit)
	return r
}

// CheckProviders resolves every active provider and runs its health check
// when it has one.
func CheckProviders(ctx context.Context, reg *providers.Registry) []Result {
	results := make([]Result, 0, len(providers.Kinds()))
	for _, kind := range providers.Kinds() {
		instance, name, err := reg.Resolve(ctx, kind)
		r := Result{Group: "providers", Name: fmt.Sprintf("%s/%s", kind, name)}
		if err != nil {
			r.Detail = err.Error()
			results = append(results, r)
			continue
		}
		checker, ok := instance.(providers.HealthChecker)
		if !ok {
			r.Passed = true
			r.Detail = "resolved"
			results = append(results, r)
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		health := checker.HealthCheck(checkCtx)
		cancel()
		r.Passed = health.Ready
		r.Detail = health.Detail
		if r.Detail == "" {
			r.Detail = "ready"
		}
		results = append(results, r)
	}
	return results
}
