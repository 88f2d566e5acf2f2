// Package instagram publishes reels through the Instagram Graph API.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nator/internal/logging"
	"nator/internal/providers"
	"nator/internal/services"
)

const (
	// Name is the registry name of this provider.
	Name = "instagram"

	// DefaultBaseURL is the versioned Graph API root.
	DefaultBaseURL = "https://graph.facebook.com/v21.0"

	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 120 * time.Second
	httpTimeout         = 30 * time.Second

	statusFinished = "FINISHED"
	statusError    = "ERROR"
)

// HTTPDoer is the subset of *http.Client the publisher needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds account credentials and polling bounds.
type Config struct {
	AccessToken  string
	UserID       string
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Publisher creates and publishes reel containers.
type Publisher struct {
	cfg    Config
	http   HTTPDoer
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes the publisher.
type Option func(*Publisher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(p *Publisher) {
		if client != nil {
			p.http = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New validates credentials and applies defaults.
func New(cfg Config, opts ...Option) (*Publisher, error) {
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	if cfg.AccessToken == "" || cfg.UserID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "publishing", "instagram", "missing IG_ACCESS_TOKEN or IG_IG_USER_ID (run: nator doctor)", nil)
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	p := &Publisher{
		cfg:    cfg,
		http:   &http.Client{Timeout: httpTimeout},
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type graphError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type idResponse struct {
	ID string `json:"id"`
}

// CreateContainer stages a reel for the video URL. The URL must be
// reachable by Instagram's servers.
func (p *Publisher) CreateContainer(ctx context.Context, req providers.ContainerRequest) (string, error) {
	body := map[string]string{
		"video_url":  req.VideoURL,
		"caption":    req.Caption,
		"media_type": "REELS",
	}
	var out idResponse
	if err := p.post(ctx, "/"+url.PathEscape(p.cfg.UserID)+"/media", body, &out); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "publishing", "instagram", "container creation failed", err)
	}
	if out.ID == "" {
		return "", services.Wrap(services.ErrExternalTool, "publishing", "instagram", "container creation returned no id", nil)
	}
	return out.ID, nil
}

// PublishContainer waits for the container to finish processing and then
// publishes it, returning the media id.
func (p *Publisher) PublishContainer(ctx context.Context, containerID string) (string, error) {
	if err := p.waitForContainer(ctx, containerID); err != nil {
		return "", err
	}
	var out idResponse
	body := map[string]string{"creation_id": containerID}
	if err := p.post(ctx, "/"+url.PathEscape(p.cfg.UserID)+"/media_publish", body, &out); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "publishing", "instagram", "publish failed", err)
	}
	if out.ID == "" {
		return "", services.Wrap(services.ErrExternalTool, "publishing", "instagram", "publish returned no id", nil)
	}
	return out.ID, nil
}

type containerStatus struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

// waitForContainer polls status_code until FINISHED or ERROR. Failed polls
// are retried until the timeout elapses.
func (p *Publisher) waitForContainer(ctx context.Context, containerID string) error {
	deadline := p.now().Add(p.cfg.PollTimeout)
	query := url.Values{"fields": {"status_code,status"}}
	for {
		var status containerStatus
		err := p.get(ctx, "/"+url.PathEscape(containerID), query, &status)
		switch {
		case err != nil:
			p.logger.Debug("container status poll failed", logging.String("container_id", containerID), logging.Error(err))
		case status.StatusCode == statusFinished:
			return nil
		case status.StatusCode == statusError:
			detail := status.Status
			if detail == "" {
				detail = "unknown error"
			}
			return services.Wrap(services.ErrExternalTool, "publishing", "instagram", "container processing failed: "+detail, nil)
		}
		if !p.now().Add(p.cfg.PollInterval).Before(deadline) {
			return services.Wrap(services.ErrTimeout, "publishing", "instagram",
				fmt.Sprintf("container %s not ready after %s", containerID, p.cfg.PollTimeout), nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// HealthCheck verifies the token by reading the account profile.
func (p *Publisher) HealthCheck(ctx context.Context) providers.Health {
	name := "publisher/" + Name
	var profile struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := p.get(ctx, "/"+url.PathEscape(p.cfg.UserID), url.Values{"fields": {"id,username"}}, &profile); err != nil {
		return providers.Unhealthy(name, err.Error())
	}
	h := providers.Healthy(name)
	h.Detail = "connected as @" + firstNonEmpty(profile.Username, profile.ID)
	return h
}

func (p *Publisher) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *Publisher) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := p.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return p.do(req, out)
}

func (p *Publisher) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+p.cfg.AccessToken)
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		message := resp.Status
		var ge graphError
		if json.Unmarshal(data, &ge) == nil && ge.Error != nil && ge.Error.Message != "" {
			message = ge.Error.Message
		}
		return fmt.Errorf("graph api %s (%d): %s", req.URL.Path, resp.StatusCode, message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Register adds the instagram publisher to reg.
func Register(reg *providers.Registry) {
	reg.RegisterPublisher(Name, func(ctx context.Context, env providers.Env) (providers.Publisher, error) {
		var cfg Config
		if env.Config != nil {
			ig := env.Config.Instagram
			cfg = Config{
				AccessToken:  ig.AccessToken,
				UserID:       ig.UserID,
				BaseURL:      ig.GraphBaseURL,
				PollInterval: time.Duration(ig.PollIntervalSeconds) * time.Second,
				PollTimeout:  time.Duration(ig.PollTimeoutSeconds) * time.Second,
			}
		}
		var err error
		if cfg.AccessToken, err = env.Setting(ctx, "ig.access_token", cfg.AccessToken); err != nil {
			return nil, err
		}
		if cfg.UserID, err = env.Setting(ctx, "ig.user_id", cfg.UserID); err != nil {
			return nil, err
		}
		publisher, err := New(cfg, WithLogger(env.Logger))
		if err != nil {
			return nil, err
		}
		return publisher, nil
	})
}
