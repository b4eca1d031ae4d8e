package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"reputationkit/core"
)

// Sink posts domain events to configured HTTP endpoints.
// Delivery is synchronous; run it behind an async event bus when handlers
// must not block commits.
type Sink struct {
	client    *http.Client
	endpoints []endpoint
	types     map[core.EventType]struct{}
	log       zerolog.Logger
	breaker   gobreaker.Settings
}

type endpoint struct {
	url string
	cb  *gobreaker.CircuitBreaker[struct{}]
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithEventTypes restricts delivery to the given types.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(s *Sink) { s.log = l } }

// WithBreaker tunes the per-endpoint circuit breaker. The circuit opens after
// failures consecutive failed deliveries and probes again after cooldown.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(s *Sink) {
		if failures > 0 {
			s.breaker.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= failures }
		}
		if cooldown > 0 {
			s.breaker.Timeout = cooldown
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		log:    zerolog.Nop(),
		breaker: gobreaker.Settings{
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, url := range endpoints {
		st := s.breaker
		st.Name = url
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			s.log.Warn().Str("endpoint", name).Str("from", from.String()).Str("to", to.String()).Msg("webhook circuit state change")
		}
		s.endpoints = append(s.endpoints, endpoint{url: url, cb: gobreaker.NewCircuitBreaker[struct{}](st)})
	}
	return s
}

// OnEvent posts the event JSON to every endpoint. Failures are logged.
func (s *Sink) OnEvent(e core.Event) {
	if err := s.Deliver(context.Background(), e); err != nil {
		s.log.Warn().Err(err).Str("event_id", e.ID).Str("type", string(e.Type)).Msg("webhook delivery failed")
	}
}

// Handle matches the event bus handler signature.
func (s *Sink) Handle(ctx context.Context, e core.Event) {
	if err := s.Deliver(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("event_id", e.ID).Str("type", string(e.Type)).Msg("webhook delivery failed")
	}
}

// Deliver posts e to every endpoint and joins the per-endpoint errors.
// Endpoints whose circuit is open are skipped with gobreaker.ErrOpenState.
func (s *Sink) Deliver(ctx context.Context, e core.Event) error {
	if len(s.endpoints) == 0 {
		return nil
	}
	if s.types != nil {
		if _, ok := s.types[e.Type]; !ok {
			return nil
		}
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var errs []error
	for _, ep := range s.endpoints {
		_, err := ep.cb.Execute(func() (struct{}, error) {
			return struct{}{}, s.post(ctx, ep.url, e, body)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ep.url, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) post(ctx context.Context, url string, e core.Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Reputation-Event", string(e.Type))
	req.Header.Set("X-Reputation-Event-Id", e.ID)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
