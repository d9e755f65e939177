// Package webhook delivers signed JSON events to a single downstream HTTP
// endpoint with bounded retries. The clinical report service consumes
// appointment.completed events through it.
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
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Careslot-Signature"

// ---------------------------------------------------------------------------
// Domain structs
// ---------------------------------------------------------------------------

// Event is the envelope POSTed to the endpoint.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// DeliveryAttempt records one HTTP attempt for an event.
type DeliveryAttempt struct {
	EventID    string        `json:"event_id"`
	Attempt    int           `json:"attempt"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration_ns"`
	Status     string        `json:"status"` // "success" or "failed"
	Error      string        `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Signature helpers
// ---------------------------------------------------------------------------

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithMaxRetries sets the maximum number of retry attempts after the first.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) { d.maxRetries = n }
}

// WithClock sets the source of event timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithAttemptTimeout bounds each HTTP attempt.
func WithAttemptTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.httpClient.Timeout = t }
}

// WithRetryDelays sets the wait before each retry. The last delay repeats
// when there are more retries than delays.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelays = delays }
}

// Dispatcher signs and POSTs events to one endpoint.
type Dispatcher struct {
	endpoint    string
	secret      string
	httpClient  *http.Client
	maxRetries  int
	retryDelays []time.Duration
	now         func() time.Time
}

// With the defaults a Send that times out on every attempt takes 9.25s.
const (
	defaultAttemptTimeout = 1500 * time.Millisecond
	defaultMaxRetries     = 3
)

var defaultRetryDelays = []time.Duration{250 * time.Millisecond, 1 * time.Second, 2 * time.Second}

// NewDispatcher validates the endpoint URL and returns a Dispatcher with
// three retries at 250ms, 1s and 2s.
func NewDispatcher(endpoint, secret string, opts ...Option) (*Dispatcher, error) {
	if err := validateURL(endpoint); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		endpoint:    endpoint,
		secret:      secret,
		httpClient:  &http.Client{Timeout: defaultAttemptTimeout},
		maxRetries:  defaultMaxRetries,
		retryDelays: append([]time.Duration(nil), defaultRetryDelays...),
		now:         time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// MaxDuration is the longest a Send can take when every attempt times out.
// Callers should give Send a deadline at least this long or the later
// retries never run.
func (d *Dispatcher) MaxDuration() time.Duration {
	total := time.Duration(d.maxRetries+1) * d.httpClient.Timeout
	for i := 0; i < d.maxRetries; i++ {
		total += d.delay(i)
	}
	return total
}

// validateURL checks that the URL is non-empty and uses http or https.
func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Send wraps payload in an Event and delivers it, retrying on transport
// errors and 5xx responses. It returns every attempt made and an error if
// none succeeded.
func (d *Dispatcher) Send(ctx context.Context, eventType string, payload interface{}) ([]DeliveryAttempt, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   raw,
		Timestamp: d.now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	var attempts []DeliveryAttempt
	for i := 0; i <= d.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return attempts, ctx.Err()
			case <-time.After(d.delay(i - 1)):
			}
		}
		a := d.attempt(ctx, event.ID, i+1, body)
		attempts = append(attempts, a)
		if a.Status == "success" {
			return attempts, nil
		}
		if a.StatusCode >= 400 && a.StatusCode < 500 {
			break
		}
	}
	last := attempts[len(attempts)-1]
	return attempts, fmt.Errorf("deliver %s after %d attempts: %s", eventType, len(attempts), last.Error)
}

func (d *Dispatcher) delay(i int) time.Duration {
	if len(d.retryDelays) == 0 {
		return 0
	}
	if i >= len(d.retryDelays) {
		return d.retryDelays[len(d.retryDelays)-1]
	}
	return d.retryDelays[i]
}

func (d *Dispatcher) attempt(ctx context.Context, eventID string, n int, body []byte) DeliveryAttempt {
	a := DeliveryAttempt{EventID: eventID, Attempt: n, Status: "failed"}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		a.Error = err.Error()
		return a
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+SignPayload(body, d.secret))
	req.Header.Set("X-Careslot-Event-ID", eventID)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	a.Duration = time.Since(start)
	if err != nil {
		a.Error = err.Error()
		return a
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	a.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		a.Status = "success"
	} else {
		a.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return a
}
