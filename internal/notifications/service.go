// Package notifications pushes pipeline events to analysts through ntfy.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"casefile/internal/artifact"
	"casefile/internal/config"
)

const userAgent = "casefile/0.1.0"

// Service is the notification surface used by the pipeline. Failures to
// deliver never fail the pipeline; callers log and move on.
type Service interface {
	NotifyArtifactCompleted(ctx context.Context, a *artifact.Artifact) error
	NotifyArtifactFailed(ctx context.Context, a *artifact.Artifact) error
	NotifyStaleRecovered(ctx context.Context, count int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured, otherwise a noop implementation.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyArtifactCompleted(ctx context.Context, a *artifact.Artifact) error {
	message := fmt.Sprintf("%s / %s processed: %d events, %d violations, %d IOC hits",
		a.CaseID, a.Name, a.EventCount, a.ViolationCount, a.IOCHitCount)
	if a.Degraded {
		message += " (detection degraded)"
	}
	data := payload{
		title:   "Casefile - Artifact Processed",
		message: message,
		tags:    []string{"casefile", "artifact", "completed"},
	}
	if a.ViolationCount > 0 || a.IOCHitCount > 0 {
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyArtifactFailed(ctx context.Context, a *artifact.Artifact) error {
	data := payload{
		title: "Casefile - Artifact Failed",
		message: fmt.Sprintf("%s / %s failed: %s",
			a.CaseID, a.Name, artifact.Display(artifact.StatusFailed, a.FailureReason)),
		tags:     []string{"casefile", "artifact", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStaleRecovered(ctx context.Context, count int) error {
	data := payload{
		title:   "Casefile - Stale Artifacts Recovered",
		message: fmt.Sprintf("%d abandoned artifacts returned to the queue", count),
		tags:    []string{"casefile", "recovery"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Casefile - Test",
		message:  "Notification delivery test",
		tags:     []string{"casefile", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
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

func (noopService) NotifyArtifactCompleted(context.Context, *artifact.Artifact) error { return nil }
func (noopService) NotifyArtifactFailed(context.Context, *artifact.Artifact) error    { return nil }
func (noopService) NotifyStaleRecovered(context.Context, int) error                   { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
