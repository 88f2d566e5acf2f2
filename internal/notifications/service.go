package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nator/internal/config"
)

const userAgent = "nator/0.1"

// Event enumerates pipeline notifications.
type Event string

const (
	EventJobCompleted     Event = "job_completed"
	EventJobFailed        Event = "job_failed"
	EventSafetyHalt       Event = "safety_halt"
	EventQuotaReached     Event = "quota_reached"
	EventTestNotification Event = "test"
)

// Payload carries event-specific values such as jobID, stage, or error.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted:     cfg.Notifications.JobCompleted,
			EventJobFailed:        cfg.Notifications.JobFailed,
			EventSafetyHalt:       cfg.Notifications.Safety,
			EventQuotaReached:     cfg.Notifications.Safety,
			EventTestNotification: true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	jobID := payload.str("jobID")
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("Published job %s", jobID)
		if media := payload.str("mediaID"); media != "" {
			body += fmt.Sprintf("\nMedia: %s", media)
		}
		if mode := payload.str("mode"); mode != "" {
			body += fmt.Sprintf(" (%s)", mode)
		}
		return message{
			title: "nator - Job Complete",
			body:  body,
			tags:  []string{"nator", "job", "completed"},
		}, true
	case EventJobFailed:
		return message{
			title:    "nator - Job Failed",
			body:     fmt.Sprintf("Job %s failed at %s: %s", jobID, payload.str("stage"), payload.str("error")),
			tags:     []string{"nator", "job", "failed"},
			priority: "high",
		}, true
	case EventSafetyHalt:
		return message{
			title:    "nator - Kill Switch Active",
			body:     fmt.Sprintf("Pipeline halted: remove %s to continue", payload.str("path")),
			tags:     []string{"nator", "safety", "halt"},
			priority: "high",
		}, true
	case EventQuotaReached:
		return message{
			title: "nator - Daily Limit Reached",
			body:  fmt.Sprintf("Daily post limit reached (%s/%s)", payload.str("count"), payload.str("limit")),
			tags:  []string{"nator", "safety", "quota"},
		}, true
	case EventTestNotification:
		return message{
			title:    "nator - Test",
			body:     "Notification system test",
			tags:     []string{"nator", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
