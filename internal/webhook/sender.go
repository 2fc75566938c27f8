package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
)

type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Signature string    `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID     string `json:"job_id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Printed   int    `json:"printed"`
	Error     string `json:"error,omitempty"`
	Origin    string `json:"origin,omitempty"`
	Duration  int64  `json:"duration_ms,omitempty"`
	CreatedAt string `json:"created_at"`
}

type task struct {
	endpoint config.WebhookEndpoint
	payload  *Payload
	attempt  int
}

type httpError struct {
	status int
}

func (e *httpError) Error() string { return fmt.Sprintf("http error: %d", e.status) }

func (e *httpError) clientError() bool { return e.status >= 400 && e.status < 500 }

const defaultQueueSize = 100

// EventTest is sent only by Test and bypasses event subscriptions.
const EventTest = "test"

var ErrUnknownEndpoint = errors.New("unknown webhook endpoint")

type TestEventData struct {
	Message  string `json:"message"`
	Endpoint string `json:"endpoint"`
}

// Sender delivers job events to the configured endpoints from a small pool
// of workers. Delivery never blocks the caller; a full queue drops the event.
type Sender struct {
	endpoints  []config.WebhookEndpoint
	httpClient *http.Client
	workers    int
	retryCount int
	retryDelay time.Duration
	queue      chan *task
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	logger     *slog.Logger
	now        func() time.Time
}

func NewSender(cfg config.WebhooksConfig, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	return &Sender{
		endpoints:  cfg.Endpoints,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		workers:    cfg.Workers,
		retryCount: cfg.MaxRetries,
		retryDelay: time.Second,
		queue:      make(chan *task, defaultQueueSize),
		stopCh:     make(chan struct{}),
		logger:     logger.With("component", "webhook"),
		now:        time.Now,
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop signals the workers and waits for in-flight deliveries to return.
func (s *Sender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// SendJobEvent queues event for every endpoint subscribed to it.
func (s *Sender) SendJobEvent(event string, job core.Job) error {
	data := &JobEventData{
		JobID:     job.ID,
		Type:      string(job.Kind),
		Status:    string(job.Status),
		Total:     job.Total,
		Printed:   job.Printed,
		Error:     job.Error,
		Origin:    job.Origin,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.Status.Terminal() {
		data.Duration = job.UpdatedAt.Sub(job.CreatedAt).Milliseconds()
	}
	s.enqueue(event, data)
	return nil
}

func (s *Sender) enqueue(event string, data any) {
	for _, ep := range s.endpoints {
		if !subscribed(ep, event) {
			continue
		}
		t := &task{
			endpoint: ep,
			payload: &Payload{
				Event:     event,
				Timestamp: s.now().UTC(),
				Data:      data,
			},
		}

		select {
		case s.queue <- t:
		default:
			s.logger.Warn("queue full, dropping event", "endpoint", ep.Name, "event", event)
		}
	}
}

// Endpoints returns the configured endpoints in configuration order.
func (s *Sender) Endpoints() []config.WebhookEndpoint {
	return append([]config.WebhookEndpoint(nil), s.endpoints...)
}

// Test delivers a single test event to the named endpoint and waits for the
// response. It does not retry.
func (s *Sender) Test(ctx context.Context, name string) error {
	for _, ep := range s.endpoints {
		if ep.Name != name {
			continue
		}
		return s.sendRequest(ctx, ep, &Payload{
			Event:     EventTest,
			Timestamp: s.now().UTC(),
			Data:      &TestEventData{Message: "Test event from taskprinter", Endpoint: ep.Name},
		})
	}
	return fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
}

func subscribed(ep config.WebhookEndpoint, event string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, e := range ep.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				s.logger.Error("delivery failed",
					"worker", id, "endpoint", t.endpoint.Name, "event", t.payload.Event,
					"attempts", t.attempt, "error", err)
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.retryCount {
		t.attempt++

		err := s.sendRequest(context.Background(), t.endpoint, t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		var hErr *httpError
		if errors.As(err, &hErr) && hErr.clientError() {
			s.logger.Warn("client error, not retrying", "endpoint", t.endpoint.Name, "error", err)
			return err
		}

		if t.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			s.logger.Debug("retrying delivery",
				"attempt", t.attempt, "max", s.retryCount, "endpoint", t.endpoint.Name, "backoff", backoff, "error", err)

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested: %w", lastErr)
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(ctx context.Context, ep config.WebhookEndpoint, payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if ep.Secret != "" {
		payload.Signature = Sign(dataBytes, ep.Secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.httpClient.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", payload.Event)
	if payload.Signature != "" {
		req.Header.Set("X-Webhook-Signature", payload.Signature)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &httpError{status: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret. Receivers verify
// X-Webhook-Signature against the JSON encoding of the payload's data field.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
