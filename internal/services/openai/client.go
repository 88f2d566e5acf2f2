// Package openai implements the script provider on top of the OpenAI chat
// completions API. Responses are requested as JSON and checked against a
// schema before they reach the pipeline.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"nator/internal/logging"
	"nator/internal/providers"
	"nator/internal/services"
)

const (
	// Name is the registry name of this provider.
	Name = "openai"

	// DefaultModel is used when openai.model is empty.
	DefaultModel = "gpt-4o-mini"

	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.8
	defaultMaxRetries  = 3
	parseAttempts      = 2
)

// Config captures the settings needed to reach the API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Temperature    float64
}

// Client generates narration scripts.
type Client struct {
	cfg        Config
	api        oai.Client
	logger     *slog.Logger
	maxRetries int
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the transport used by the SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMaxRetries overrides the SDK retry count for 429 and 5xx responses.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient validates cfg and builds the SDK client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "scripting", "openai", "api key required (openai.api_key / OPENAI_API_KEY)", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}

	client := &Client{
		cfg:        cfg,
		logger:     logging.NewNop(),
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(client)
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(client.timeout()),
		option.WithMaxRetries(client.maxRetries),
	}
	if cfg.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if client.httpClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(client.httpClient))
	}
	client.api = oai.NewClient(requestOpts...)
	return client, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

func (c *Client) timeout() time.Duration {
	if c.cfg.TimeoutSeconds > 0 {
		return time.Duration(c.cfg.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// Generate asks the model for a short narration about the clip. A reply that
// is not valid JSON or does not match the script schema is retried once.
func (c *Client) Generate(ctx context.Context, clipPath string) (providers.Script, error) {
	prompt := userPrompt(clipPath)
	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		content, err := c.complete(ctx, systemPrompt, prompt)
		if err != nil {
			return providers.Script{}, err
		}
		script, err := decodeScript(content)
		if err == nil {
			return script, nil
		}
		lastErr = err
		c.logger.Warn("script response rejected",
			logging.Int("attempt", attempt),
			logging.Error(err),
			logging.String(logging.FieldEventType, "script_response_invalid"),
		)
	}
	return providers.Script{}, services.Wrap(services.ErrValidation, "scripting", "openai", "model returned an unusable script", lastErr)
}

// HealthCheck issues a minimal JSON completion to confirm the key and model work.
func (c *Client) HealthCheck(ctx context.Context) providers.Health {
	name := "script/" + Name
	content, err := c.complete(ctx, "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return providers.Unhealthy(name, err.Error())
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &parsed); err != nil || !parsed.OK {
		return providers.Unhealthy(name, "unexpected health response")
	}
	return providers.Healthy(name)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		Temperature: oai.Float(c.cfg.Temperature),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyAPIError(err)
	}
	if len(completion.Choices) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "scripting", "openai", "no completion choices returned", nil)
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		reason := string(completion.Choices[0].FinishReason)
		return "", services.Wrap(services.ErrExternalTool, "scripting", "openai", fmt.Sprintf("empty content (finish_reason=%q)", reason), nil)
	}
	return content, nil
}

func classifyAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "scripting", "openai", "request timed out", err)
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "scripting", "openai", "credentials rejected", err)
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "scripting", "openai", "api unavailable", err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "scripting", "openai", "chat completion failed", err)
}

func userPrompt(clipPath string) string {
	subject := "general productivity"
	if base := strings.TrimSuffix(filepath.Base(strings.TrimSpace(clipPath)), filepath.Ext(clipPath)); base != "" && base != "." {
		subject = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	}
	return fmt.Sprintf("Write narration for a vertical short video. Topic hint from the clip name: %q.", subject)
}
