// Package webhook provides HTTP webhook notification support for fleet run events.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// EventType represents the type of fleet event that can trigger webhooks.
type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventRunCompleted   EventType = "run.completed"
	EventRunHalted      EventType = "run.halted"
	EventRollbackFailed EventType = "rollback.failed"
	EventPruneComplete  EventType = "prune.complete"
)

// Event is the payload posted to configured endpoints. RollbackFailed
// events exist so that possibly-inconsistent devices page a human.
type Event struct {
	Event     EventType      `json:"event"`
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Device    string         `json:"device,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HookConfig represents a single webhook endpoint.
type HookConfig struct {
	URL     string        `json:"url"`
	Secret  string        `json:"secret,omitempty"`
	Events  []EventType   `json:"events"`
	Timeout time.Duration `json:"timeout"`
	Enabled bool          `json:"enabled"`
}

// Config represents the webhook configuration.
type Config struct {
	Hooks          []HookConfig  `json:"hooks"`
	Enabled        bool          `json:"enabled"`
	MaxRetries     int           `json:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	AsyncQueueSize int           `json:"async_queue_size"`
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		AsyncQueueSize: 100,
	}
}

// Client handles sending webhook notifications.
type Client struct {
	config *Config
	http   *http.Client
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.RWMutex
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a new webhook client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		queue:  make(chan *job, cfg.AsyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Enabled {
		c.start()
	}
	return c
}

func (c *Client) start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.worker()
	})
}

func (c *Client) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining jobs
			for len(c.queue) > 0 {
				j := <-c.queue
				c.deliver(j)
			}
			return
		case j := <-c.queue:
			c.deliver(j)
		}
	}
}

// Send sends an event to all matching webhooks. With async, the event
// is queued for background delivery; otherwise it is sent inline.
func (c *Client) Send(event Event, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if !hook.Enabled {
			continue
		}
		if matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			j := &job{event: event, hook: hook}
			select {
			case c.queue <- j:
			default:
				// Queue full; dropping is preferable to blocking a run
				fmt.Printf("warning: webhook queue full, dropping event: %s\n", event.Event)
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) deliver(j *job) {
	if err := c.sendSync(j); err != nil {
		fmt.Printf("webhook error: %v\n", err)
	}
}

func (c *Client) sendSync(j *job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		req, err := c.createRequest(j.hook, payload)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return lastErr
}

func (c *Client) createRequest(hook HookConfig, payload []byte) (*http.Request, error) {
	req, err := http.NewRequest("POST", hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fleetconf-webhook/1.0")

	if hook.Secret != "" {
		req.Header.Set("X-Fleetconf-Signature", sign(payload, hook.Secret))
	}
	return req, nil
}

// sign creates an HMAC-SHA256 signature for the payload.
func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close gracefully shuts down the webhook client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	return nil
}

// SendRunStarted sends a run.started event.
func (c *Client) SendRunStarted(runID, operation string, targetCount int, async bool) error {
	return c.Send(Event{
		Event:     EventRunStarted,
		RunID:     runID,
		Operation: operation,
		Metadata:  map[string]any{"target_count": targetCount},
	}, async)
}

// SendRunCompleted sends a run.completed event.
func (c *Client) SendRunCompleted(runID, operation string, counts map[string]int, async bool) error {
	meta := make(map[string]any, len(counts))
	for k, v := range counts {
		meta[k] = v
	}
	return c.Send(Event{
		Event:     EventRunCompleted,
		RunID:     runID,
		Operation: operation,
		Metadata:  meta,
	}, async)
}

// SendRunHalted sends a run.halted event.
func (c *Client) SendRunHalted(runID, operation, reason string, async bool) error {
	return c.Send(Event{
		Event:     EventRunHalted,
		RunID:     runID,
		Operation: operation,
		Error:     reason,
	}, async)
}

// SendRollbackFailed sends a rollback.failed event for a device left in
// a possibly-inconsistent state.
func (c *Client) SendRollbackFailed(runID, device, errMsg string, async bool) error {
	return c.Send(Event{
		Event:  EventRollbackFailed,
		RunID:  runID,
		Device: device,
		Error:  errMsg,
	}, async)
}

// SendPruneComplete sends a prune.complete event.
func (c *Client) SendPruneComplete(deleted int, freedBytes int64, async bool) error {
	return c.Send(Event{
		Event: EventPruneComplete,
		Metadata: map[string]any{
			"snapshots_deleted": deleted,
			"freed_bytes":       freedBytes,
		},
	}, async)
}
