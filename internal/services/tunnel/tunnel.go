// Package tunnel exposes a local file through a short-lived cloudflared
// quick tunnel so a remote publisher can fetch it.
package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"nator/internal/logging"
	"nator/internal/providers"
	"nator/internal/services"
)

const (
	// Name is the registry name of this provider.
	Name = "tunnel"

	// DefaultBinary is the cloudflared executable looked up on PATH.
	DefaultBinary = "cloudflared"

	defaultPort           = 8787
	defaultTimeout        = 300 * time.Second
	defaultStartupTimeout = 30 * time.Second
	processWaitDelay      = 2 * time.Second
)

var tunnelURLPattern = regexp.MustCompile(`https://[a-z0-9-]+\.trycloudflare\.com`)

// Uploader serves one file per Upload call on 127.0.0.1 and publishes it
// through cloudflared. Each session shuts itself down after Timeout.
type Uploader struct {
	Binary         string
	Port           int
	Timeout        time.Duration
	StartupTimeout time.Duration
	Now            func() time.Time
	Logger         *slog.Logger

	mu       sync.Mutex
	sessions []*session
}

// New builds an uploader. A zero port picks a free one.
func New(binary string, port int, timeout time.Duration, logger *slog.Logger) *Uploader {
	u := &Uploader{
		Binary:         strings.TrimSpace(binary),
		Port:           port,
		Timeout:        timeout,
		StartupTimeout: defaultStartupTimeout,
		Now:            time.Now,
		Logger:         logger,
	}
	if u.Binary == "" {
		u.Binary = DefaultBinary
	}
	if u.Timeout <= 0 {
		u.Timeout = defaultTimeout
	}
	if u.Logger == nil {
		u.Logger = logging.NewNop()
	}
	return u
}

type session struct {
	server *http.Server
	cmd    *exec.Cmd
	timer  *time.Timer
	once   sync.Once
	logger *slog.Logger
}

func (s *session) close() {
	s.once.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Debug("tunnel file server shutdown", logging.Error(err))
		}
	})
}

// Upload starts a file server and tunnel for path and returns the public
// URL, which stops working once the session times out.
func (u *Uploader) Upload(ctx context.Context, path string) (providers.Upload, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return providers.Upload{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return providers.Upload{}, services.Wrap(services.ErrNotFound, "uploading", "tunnel", "file not found: "+absPath, err)
	}
	if _, err := exec.LookPath(u.Binary); err != nil {
		return providers.Upload{}, services.Wrap(services.ErrConfiguration, "uploading", "tunnel", u.Binary+" not found on PATH", err)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(u.Port)))
	if err != nil {
		return providers.Upload{}, services.Wrap(services.ErrExternalTool, "uploading", "tunnel", "listen", err)
	}
	fileName := filepath.Base(absPath)
	sess := &session{server: &http.Server{Handler: fileHandler(fileName, absPath), ReadHeaderTimeout: 10 * time.Second}, logger: u.Logger}
	go func() {
		if err := sess.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			u.Logger.Warn("tunnel file server stopped", logging.Error(err))
		}
	}()

	localURL := "http://" + listener.Addr().String()
	publicBase, cmd, err := u.startTunnel(ctx, localURL)
	sess.cmd = cmd
	if err != nil {
		sess.close()
		return providers.Upload{}, err
	}

	sess.timer = time.AfterFunc(u.Timeout, sess.close)
	u.mu.Lock()
	u.sessions = append(u.sessions, sess)
	u.mu.Unlock()

	expires := u.now().Add(u.Timeout)
	u.Logger.Info("tunnel open",
		logging.String("public_url", publicBase),
		logging.String("local_url", localURL),
		logging.Duration("ttl", u.Timeout),
	)
	return providers.Upload{URL: publicBase + "/" + url.PathEscape(fileName), ExpiresAt: &expires}, nil
}

// Close shuts down every open session.
func (u *Uploader) Close() {
	u.mu.Lock()
	sessions := u.sessions
	u.sessions = nil
	u.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}

func (u *Uploader) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}

// startTunnel runs cloudflared and waits for it to print its public URL.
func (u *Uploader) startTunnel(ctx context.Context, localURL string) (string, *exec.Cmd, error) {
	cmd := exec.Command(u.Binary, "tunnel", "--url", localURL)
	cmd.WaitDelay = processWaitDelay
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return "", nil, services.Wrap(services.ErrExternalTool, "uploading", "tunnel", "start "+u.Binary, err)
	}

	found := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(pr)
		sent := false
		for scanner.Scan() {
			if sent {
				continue
			}
			if match := tunnelURLPattern.FindString(scanner.Text()); match != "" {
				found <- match
				sent = true
			}
		}
		_, _ = io.Copy(io.Discard, pr)
	}()
	exited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		exited <- err
	}()

	startup := u.StartupTimeout
	if startup <= 0 {
		startup = defaultStartupTimeout
	}
	timer := time.NewTimer(startup)
	defer timer.Stop()

	select {
	case publicURL := <-found:
		return publicURL, cmd, nil
	case err := <-exited:
		return "", cmd, services.Wrap(services.ErrExternalTool, "uploading", "tunnel", "cloudflared exited before producing a URL", err)
	case <-timer.C:
		return "", cmd, services.Wrap(services.ErrTimeout, "uploading", "tunnel", fmt.Sprintf("tunnel startup timed out (%s)", startup), nil)
	case <-ctx.Done():
		return "", cmd, ctx.Err()
	}
}

func fileHandler(name, path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+name {
			http.NotFound(w, r)
			return
		}
		if strings.EqualFold(filepath.Ext(name), ".mp4") {
			w.Header().Set("Content-Type", "video/mp4")
		}
		http.ServeFile(w, r, path)
	})
}

// HealthCheck confirms cloudflared is on PATH.
func (u *Uploader) HealthCheck(context.Context) providers.Health {
	name := "storage/" + Name
	if _, err := exec.LookPath(u.Binary); err != nil {
		return providers.Unhealthy(name, u.Binary+" binary not found on PATH")
	}
	return providers.Healthy(name)
}

// Register adds the tunnel uploader to reg. The provider refuses to build
// when tunnel.enabled is false.
func Register(reg *providers.Registry) {
	reg.RegisterUploader(Name, func(ctx context.Context, env providers.Env) (providers.Uploader, error) {
		binary := ""
		enabled, port, timeoutSecs := "true", strconv.Itoa(defaultPort), strconv.Itoa(int(defaultTimeout/time.Second))
		if env.Config != nil {
			binary = env.Config.Tunnel.Binary
			enabled = strconv.FormatBool(env.Config.Tunnel.Enabled)
			port = strconv.Itoa(env.Config.Tunnel.Port)
			timeoutSecs = strconv.Itoa(env.Config.Tunnel.TimeoutSecs)
		}
		var err error
		if enabled, err = env.Setting(ctx, "tunnel.enabled", enabled); err != nil {
			return nil, err
		}
		if on, _ := strconv.ParseBool(enabled); !on {
			return nil, services.Wrap(services.ErrConfiguration, "uploading", "tunnel", "tunnel.enabled is false", nil)
		}
		if port, err = env.Setting(ctx, "tunnel.port", port); err != nil {
			return nil, err
		}
		if timeoutSecs, err = env.Setting(ctx, "tunnel.timeout_secs", timeoutSecs); err != nil {
			return nil, err
		}
		portNum, err := strconv.Atoi(port)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "uploading", "tunnel", "invalid tunnel.port "+port, err)
		}
		secs, err := strconv.Atoi(timeoutSecs)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "uploading", "tunnel", "invalid tunnel.timeout_secs "+timeoutSecs, err)
		}
		return New(binary, portNum, time.Duration(secs)*time.Second, env.Logger), nil
	})
}
