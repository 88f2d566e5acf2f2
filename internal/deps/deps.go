// Package deps checks that the external tools used by the active providers
// are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"nator/internal/config"
)

// Requirement defines an external binary a provider shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// ActiveProviders names the configured provider for each capability kind.
type ActiveProviders struct {
	TTS      string
	Renderer string
	Storage  string
}

// Requirements lists the binaries needed by the active providers. ffprobe is
// always listed because clip ingest uses it for durations; it is optional
// unless a real tts or renderer provider needs it.
func Requirements(cfg *config.Config, active ActiveProviders) []Requirement {
	needsProbe := active.TTS == "edge" || active.Renderer == "ffmpeg"
	reqs := []Requirement{{
		Name:        "ffprobe",
		Command:     cfg.Render.FFprobeBinary,
		Description: "Measures clip and audio durations",
		Optional:    !needsProbe,
	}}
	if active.Renderer == "ffmpeg" {
		reqs = append(reqs, Requirement{
			Name:        "ffmpeg",
			Command:     cfg.Render.FFmpegBinary,
			Description: "Renders vertical video",
		})
	}
	if active.TTS == "edge" {
		reqs = append(reqs, Requirement{
			Name:        "edge-tts",
			Command:     cfg.TTS.Binary,
			Description: "Synthesizes narration",
		})
	}
	if active.Storage == "tunnel" {
		reqs = append(reqs, Requirement{
			Name:        "cloudflared",
			Command:     cfg.Tunnel.Binary,
			Description: "Exposes rendered files through a quick tunnel",
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if resolved, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
				status.Command = resolved
			}
		}
		results = append(results, status)
	}
	return results
}
