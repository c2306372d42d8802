// Package delivery posts lead batches to a user-supplied webhook.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single webhook POST
const DefaultTimeout = 30 * time.Second

// Transport is an opaque POST capability. A nil error means the request completed;
// the response is never inspected.
type Transport interface {
	Post(ctx context.Context, endpoint string, body []byte) error
}

// Result is the outcome of one Send. Failures are reported here, never thrown.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HTTPTransport posts JSON as text/plain, the way a no-cors browser fetch does,
// so receivers such as Apps Script web apps accept it without a preflight.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given request timeout
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	// Opaque: drain and ignore whatever came back
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

// Sink serializes payloads and hands them to the transport, optionally spacing
// posts to the same endpoint by a minimum interval.
type Sink struct {
	transport   Transport
	minInterval time.Duration
	logger      arbor.ILogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSink creates a new delivery sink. minInterval <= 0 disables pacing.
func NewSink(transport Transport, minInterval time.Duration, logger arbor.ILogger) *Sink {
	return &Sink{
		transport:   transport,
		minInterval: minInterval,
		logger:      logger,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (s *Sink) limiter(endpoint string) *rate.Limiter {
	if s.minInterval <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[endpoint]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.minInterval), 1)
		s.limiters[endpoint] = l
	}
	return l
}

// Send posts payload as JSON to endpoint
func (s *Sink) Send(ctx context.Context, endpoint string, payload interface{}) Result {
	if strings.TrimSpace(endpoint) == "" {
		return Result{Error: "webhook URL is not configured"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	if l := s.limiter(endpoint); l != nil {
		if err := l.Wait(ctx); err != nil {
			return Result{Error: fmt.Sprintf("delivery cancelled: %v", err)}
		}
	}

	if err := s.transport.Post(ctx, endpoint, body); err != nil {
		s.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Webhook delivery failed")
		return Result{Error: err.Error()}
	}

	s.logger.Debug().Str("endpoint", endpoint).Int("bytes", len(body)).Msg("Webhook delivered")
	return Result{Success: true}
}
