package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Delivery tuning. Retries back off exponentially from retryBaseDelay;
// a hook that exhausts its retries breakerThreshold times in a row is
// cut off until the manager is rebuilt.
const (
	defaultTimeout   = 5 * time.Second
	defaultRetries   = 3
	defaultTemplate  = "generic"
	breakerThreshold = 5
	retryBaseDelay   = time.Second
)

// WebhookConfig describes a single webhook destination.
type WebhookConfig struct {
	Name          string
	URL           string
	Events        []EventType
	Headers       map[string]string
	Timeout       time.Duration
	MaxRetries    int
	Template      string // "generic", "slack", "pagerduty"
	AllowInsecure bool
}

// notification is the flattened view of a kernel event that every
// payload format renders from. Signal and exit fields are set only
// when the event carries them.
type notification struct {
	Event     string            `json:"event"`
	Severity  string            `json:"severity"`
	Timestamp string            `json:"timestamp"`
	PID       string            `json:"pid,omitempty"`
	Signal    string            `json:"signal,omitempty"`
	ExitCode  string            `json:"exit_code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

func newNotification(e Event) notification {
	return notification{
		Event:     string(e.Type),
		Severity:  eventSeverity(e.Type),
		Timestamp: e.Timestamp.Format(time.RFC3339),
		PID:       e.Data["pid"],
		Signal:    e.Data["signal"],
		ExitCode:  e.Data["exit_code"],
		Details:   e.Data,
	}
}

// eventSeverity classifies an event for alerting. A queue overflow
// loses standard signals outright; a force kill skips the zombie
// interval; discards and reparents are survivable.
func eventSeverity(et EventType) string {
	switch et {
	case QueueOverflow:
		return "critical"
	case ProcessForceKill:
		return "error"
	case SignalDiscarded, ProcessReparented:
		return "warning"
	default:
		return "info"
	}
}

// summary is the one-line form used by the chat-style templates.
func (n notification) summary() string {
	parts := []string{n.Event}
	if n.PID != "" {
		parts = append(parts, "pid "+n.PID)
	}
	if n.Signal != "" {
		parts = append(parts, n.Signal)
	}
	if n.ExitCode != "" {
		parts = append(parts, "exit "+n.ExitCode)
	}
	return strings.Join(parts, " ")
}

// render produces the JSON body for the named template. Unknown
// template names fall back to the generic format.
func (n notification) render(template string) []byte {
	var payload any
	switch template {
	case "slack":
		payload = map[string]string{
			"text": fmt.Sprintf("[%s] %s", n.Severity, n.summary()),
		}
	case "pagerduty":
		payload = map[string]any{
			"routing_key":  "",
			"event_action": "trigger",
			"payload": map[string]any{
				"summary":        n.summary(),
				"source":         "osiris",
				"severity":       n.Severity,
				"timestamp":      n.Timestamp,
				"custom_details": n.Details,
			},
		}
	default:
		payload = n
	}
	data, _ := json.Marshal(payload)
	return data
}

// WebhookManager subscribes to bus events and POSTs notifications to
// the configured destinations.
type WebhookManager struct {
	bus    *Bus
	logger *slog.Logger
	client *http.Client
	hooks  []*hook
	subIDs []uint64
}

// hook is one destination plus its circuit-breaker state.
type hook struct {
	cfg     WebhookConfig
	matches map[EventType]bool

	mu       sync.Mutex
	failures int
	open     bool
}

func (h *hook) allow() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.open
}

func (h *hook) recordSuccess() {
	h.mu.Lock()
	h.failures = 0
	h.mu.Unlock()
}

// recordFailure reports whether this failure opened the breaker.
func (h *hook) recordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	if h.failures >= breakerThreshold && !h.open {
		h.open = true
		return true
	}
	return false
}

// NewWebhookManager builds the hooks from configs, applies defaults,
// and subscribes to every event type any hook wants.
func NewWebhookManager(bus *Bus, configs []WebhookConfig, logger *slog.Logger) *WebhookManager {
	wm := &WebhookManager{
		bus:    bus,
		logger: logger,
		client: &http.Client{},
	}

	for _, cfg := range configs {
		if cfg.Timeout <= 0 {
			cfg.Timeout = defaultTimeout
		}
		if cfg.MaxRetries <= 0 {
			cfg.MaxRetries = defaultRetries
		}
		if cfg.Template == "" {
			cfg.Template = defaultTemplate
		}
		h := &hook{cfg: cfg, matches: make(map[EventType]bool, len(cfg.Events))}
		for _, et := range cfg.Events {
			h.matches[et] = true
		}
		wm.hooks = append(wm.hooks, h)
	}

	for _, et := range wm.eventTypes() {
		id := bus.Subscribe(et, wm.dispatch)
		wm.subIDs = append(wm.subIDs, id)
	}
	return wm
}

// eventTypes returns the union of event types across all hooks.
func (wm *WebhookManager) eventTypes() []EventType {
	seen := make(map[EventType]bool)
	var out []EventType
	for _, h := range wm.hooks {
		for et := range h.matches {
			if !seen[et] {
				seen[et] = true
				out = append(out, et)
			}
		}
	}
	return out
}

// Stop unsubscribes from all events. In-flight deliveries finish on
// their own.
func (wm *WebhookManager) Stop() {
	for _, id := range wm.subIDs {
		wm.bus.Unsubscribe(id)
	}
}

func (wm *WebhookManager) dispatch(e Event) {
	n := newNotification(e)
	for _, h := range wm.hooks {
		if !h.matches[e.Type] {
			continue
		}
		// Deliver asynchronously so a slow endpoint cannot stall the bus.
		go wm.deliver(h, n)
	}
}

func (wm *WebhookManager) deliver(h *hook, n notification) {
	if !h.allow() {
		return
	}
	body := n.render(h.cfg.Template)

	var lastErr error
	for attempt := 0; attempt < h.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay(attempt))
		}
		if lastErr = wm.post(h.cfg, body); lastErr == nil {
			h.recordSuccess()
			return
		}
	}

	if h.recordFailure() {
		wm.logger.Warn("webhook cut off after repeated failures",
			"name", h.cfg.Name, "url", h.cfg.URL)
	}
	wm.logger.Error("webhook delivery failed",
		"name", h.cfg.Name,
		"url", h.cfg.URL,
		"error", lastErr,
	)
}

// retryDelay doubles from retryBaseDelay on each attempt after the first.
func retryDelay(attempt int) time.Duration {
	return retryBaseDelay << uint(attempt-1)
}

func (wm *WebhookManager) post(cfg WebhookConfig, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "osiris-webhook/1.0")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// ValidateWebhookURL rejects URLs that are malformed or that would
// send event data over plain HTTP to a non-loopback host.
func ValidateWebhookURL(rawURL string, allowInsecure bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid webhook URL format: %s", rawURL)
	}
	if u.Scheme != "http" || allowInsecure || isLoopback(u.Hostname()) {
		return nil
	}
	return fmt.Errorf("webhook URL must use HTTPS: %s (set allow_insecure=true to override)", rawURL)
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ExpandWebhookEnv resolves ${VAR} references from the environment.
func ExpandWebhookEnv(s string) (string, error) {
	var b strings.Builder
	rest := s
	for {
		pre, tail, found := strings.Cut(rest, "${")
		b.WriteString(pre)
		if !found {
			return b.String(), nil
		}
		name, after, closed := strings.Cut(tail, "}")
		if !closed {
			return "", fmt.Errorf("unclosed ${} in %q", s)
		}
		val, ok := lookupEnv(name)
		if !ok {
			return "", fmt.Errorf("undefined environment variable: %s", name)
		}
		b.WriteString(val)
		rest = after
	}
}

// lookupEnv is swapped out in tests.
var lookupEnv = os.LookupEnv
