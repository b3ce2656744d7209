package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yanode/internal/config"
)

const userAgent = "yanode/0.1.0"

// Event identifies a node milestone.
type Event string

const (
	EventNodeReady       Event = "node_ready"
	EventNodeStopped     Event = "node_stopped"
	EventJobStarted      Event = "job_started"
	EventJobFinished     Event = "job_finished"
	EventPaymentReceived Event = "payment_received"
	EventError           Event = "error"
	EventTest            Event = "test"
)

// Payload carries the values an event message is built from.
type Payload map[string]any

// Service publishes node events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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
			EventNodeReady:       true,
			EventNodeStopped:     true,
			EventJobStarted:      cfg.Notifications.JobStarted,
			EventJobFinished:     cfg.Notifications.JobFinished,
			EventPaymentReceived: cfg.Notifications.Payments,
			EventError:           cfg.Notifications.Errors,
			EventTest:            true,
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
	switch event {
	case EventNodeReady:
		return message{
			title: "yanode - Online",
			body:  fmt.Sprintf("🟢 Node %s is accepting jobs", text(payload, "nodeID", "unknown")),
			tags:  []string{"yanode", "node", "ready"},
		}, true
	case EventNodeStopped:
		return message{
			title: "yanode - Offline",
			body:  fmt.Sprintf("Node %s stopped", text(payload, "nodeID", "unknown")),
			tags:  []string{"yanode", "node", "stopped"},
		}, true
	case EventJobStarted:
		return message{
			title: "yanode - Job Started",
			body:  fmt.Sprintf("⚙️ Job %s started for %s", text(payload, "jobID", "?"), text(payload, "requestor", "unknown requestor")),
			tags:  []string{"yanode", "job", "started"},
		}, true
	case EventJobFinished:
		return message{
			title: "yanode - Job Finished",
			body:  fmt.Sprintf("🏁 Job %s finished, reward %s GLM", text(payload, "jobID", "?"), text(payload, "reward", "0")),
			tags:  []string{"yanode", "job", "finished"},
		}, true
	case EventPaymentReceived:
		return message{
			title:    "yanode - Payment",
			body:     fmt.Sprintf("💰 Received %s GLM for job %s", text(payload, "amount", "0"), text(payload, "jobID", "?")),
			tags:     []string{"yanode", "payment", "received"},
			priority: "high",
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := text(payload, "context", ""); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		b.WriteString(text(payload, "error", "unknown"))
		return message{
			title:    "yanode - Error",
			body:     b.String(),
			tags:     []string{"yanode", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "yanode - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"yanode", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func text(p Payload, key, fallback string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case error:
		s = t.Error()
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
		return nil
	}

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
	if msg.priority != "" && msg.priority != "default" {
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
