// Package webhook delivers medical record events to configured HTTP
// endpoints. Payloads are signed with HMAC-SHA256 and retried on failure.
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
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicrecords/records/internal/platform/websocket"
)

// ErrQueueFull is returned by Publish when deliveries are backed up.
var ErrQueueFull = errors.New("webhook queue full")

// Endpoint is one delivery target. An empty Events list receives everything.
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by SignPayload.
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithRetryDelays sets the wait before each retry; its length is the retry count.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelays = delays }
}

// WithQueueSize sets the per-endpoint queue capacity.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queueSize = n }
}

type job struct {
	id      string
	event   string
	payload []byte
}

// target is one endpoint with its own queue. A slow or failing endpoint only
// backs up its own queue.
type target struct {
	ep    Endpoint
	queue chan job
}

// Dispatcher queues events per endpoint and delivers them from one worker
// per endpoint.
type Dispatcher struct {
	targets     []*target
	httpClient  *http.Client
	retryDelays []time.Duration
	queueSize   int
	logger      zerolog.Logger

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher validates the endpoints. Call Start before publishing.
func NewDispatcher(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) (*Dispatcher, error) {
	for _, ep := range endpoints {
		if err := validateURL(ep.URL); err != nil {
			return nil, err
		}
	}
	d := &Dispatcher{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{time.Second, 30 * time.Second, 5 * time.Minute},
		queueSize:   256,
		logger:      logger.With().Str("component", "webhook").Logger(),
	}
	for _, o := range opts {
		o(d)
	}
	for _, ep := range endpoints {
		d.targets = append(d.targets, &target{ep: ep, queue: make(chan job, d.queueSize)})
	}
	return d, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid webhook url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url %q must use http or https", raw)
	}
	return nil
}

// Start runs one delivery worker per endpoint until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for _, t := range d.targets {
			d.wg.Add(1)
			go func(t *target) {
				defer d.wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case j := <-t.queue:
						if err := d.deliver(ctx, t.ep, j); err != nil {
							d.logger.Error().Err(err).Str("url", t.ep.URL).Str("event", j.event).Str("delivery_id", j.id).Msg("webhook delivery failed")
						}
					}
				}
			}(t)
		}
	})
}

// Wait blocks until the workers started by Start have returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Publish enqueues the event for every subscribed endpoint. It never blocks
// on the network. Endpoints whose queue is full drop the event and are
// reported through an error wrapping ErrQueueFull; the others still get it.
func (d *Dispatcher) Publish(_ context.Context, event websocket.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	j := job{id: uuid.NewString(), event: event.Type, payload: payload}

	var full []string
	for _, t := range d.targets {
		if !subscribed(t.ep, j.event) {
			continue
		}
		select {
		case t.queue <- j:
		default:
			full = append(full, t.ep.URL)
		}
	}
	if len(full) > 0 {
		return fmt.Errorf("%w: %s", ErrQueueFull, strings.Join(full, ", "))
	}
	return nil
}

// deliver posts j to ep, retrying after each configured delay.
func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, j job) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = d.post(ctx, ep, j); err == nil {
			return nil
		}
		if attempt >= len(d.retryDelays) {
			return fmt.Errorf("after %d attempts: %w", attempt+1, err)
		}
		d.logger.Warn().Err(err).Str("url", ep.URL).Int("attempt", attempt+1).Msg("webhook delivery will be retried")

		t := time.NewTimer(d.retryDelays[attempt])
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (d *Dispatcher) post(ctx context.Context, ep Endpoint, j job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(j.payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-ID", j.id)
	req.Header.Set("X-Webhook-Event", j.event)
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if ep.Secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(j.payload, ep.Secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}

// subscribed matches exact event names, "*" and prefixes such as "record.*".
func subscribed(ep Endpoint, event string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		switch {
		case p == "*" || p == event:
			return true
		case strings.HasSuffix(p, ".*") && strings.HasPrefix(event, strings.TrimSuffix(p, "*")):
			return true
		}
	}
	return false
}
