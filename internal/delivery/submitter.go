// Package delivery posts evaluation payloads with bounded exponential backoff.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts    = 10
	DefaultAttemptTimeout = 20 * time.Second
	DefaultInitialDelay   = time.Second

	maxResponseBytes = 1 << 20
)

// Outcome describes one Submit call. Delivered is false once every attempt
// has failed; Submit itself never returns an error.
type Outcome struct {
	Delivered bool
	Attempts  int
	// Body is the decoded JSON response, or the raw text when the 200
	// response is not JSON.
	Body      any
	LastError string
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Submitter struct {
	client         *http.Client
	maxAttempts    int
	attemptTimeout time.Duration
	initialDelay   time.Duration
	sleep          SleepFunc
	logger         zerolog.Logger
}

type Option func(*Submitter)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Submitter) {
		if c != nil {
			s.client = c
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Submitter) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Submitter) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(s *Submitter) {
		if d > 0 {
			s.initialDelay = d
		}
	}
}

// WithSleep replaces the inter-attempt wait; tests use it to record delays.
func WithSleep(fn SleepFunc) Option {
	return func(s *Submitter) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Submitter) { s.logger = l }
}

func NewSubmitter(opts ...Option) *Submitter {
	s := &Submitter{
		client:         &http.Client{},
		maxAttempts:    DefaultMaxAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		initialDelay:   DefaultInitialDelay,
		sleep:          sleepContext,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit POSTs payload as JSON until a 200 arrives or the attempt budget is
// spent. Delays double after every failure, without jitter or cap, and no
// delay follows the final attempt.
func (s *Submitter) Submit(ctx context.Context, url string, payload any) Outcome {
	var out Outcome
	log := s.logger.With().Str("url", url).Logger()

	body, err := json.Marshal(payload)
	if err != nil {
		out.LastError = errors.Wrap(err, "encode payload").Error()
		log.Error().Err(err).Msg("evaluation payload is not encodable")
		return out
	}

	b := s.newBackOff()
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		out.Attempts = attempt
		log.Info().Int("attempt", attempt).Int("max_attempts", s.maxAttempts).Msg("submitting evaluation")

		resp, err := s.post(ctx, url, body)
		if err == nil {
			out.Delivered = true
			out.Body = resp
			out.LastError = ""
			log.Info().Int("attempt", attempt).Msg("evaluation submitted")
			return out
		}
		out.LastError = err.Error()
		log.Warn().Err(err).Int("attempt", attempt).Msg("evaluation attempt failed")

		if attempt == s.maxAttempts {
			break
		}
		delay := b.NextBackOff()
		log.Info().Dur("delay", delay).Msg("retrying evaluation")
		if err := s.sleep(ctx, delay); err != nil {
			log.Warn().Err(err).Msg("evaluation retry interrupted")
			break
		}
	}

	log.Error().Int("attempts", out.Attempts).Str("last_error", out.LastError).Msg("all evaluation submission attempts failed")
	return out
}

func (s *Submitter) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.initialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func (s *Submitter) post(ctx context.Context, url string, body []byte) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "network error")
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if readErr != nil {
		return nil, errors.Wrap(readErr, "read response")
	}
	return decodeBody(raw), nil
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
