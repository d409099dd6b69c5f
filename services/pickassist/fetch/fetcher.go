// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch dispatches every source request of a cycle concurrently and
// streams results back in completion order.
//
// # Failure containment
//
// A source either yields a response or a Result with a nil Response and an
// error describing why. Nothing raises out of the fetcher: retries are
// bounded, panics inside a source goroutine are recovered, and the result
// channel always closes once every dispatched source has settled.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
	"github.com/z-Vaughan/PickAssist/services/pickassist/observability"
	"github.com/z-Vaughan/PickAssist/services/pickassist/session"
	"github.com/z-Vaughan/PickAssist/services/pickassist/telemetry"
)

var (
	// ErrExhausted means every attempt failed with a retryable error.
	ErrExhausted = errors.New("retries exhausted")

	// ErrAuthUnavailable means the session could not be made valid for an
	// auth-sensitive source.
	ErrAuthUnavailable = errors.New("session unavailable")
)

// Attempt outcomes recorded in metrics.
const (
	outcomeOK              = "ok"
	outcomeTransport       = "transport_error"
	outcomeAuthRejected    = "auth_rejected"
	outcomeAuthUnavailable = "auth_unavailable"
	outcomeFatal           = "fatal"
)

// Source is one upstream request of a cycle.
type Source struct {
	Name    string
	Request session.Request

	// AuthSensitive sources depend on session cookies. They check session
	// validity before the first attempt and before every retry, and treat
	// 401/403 as an expired session.
	AuthSensitive bool
}

// Result is the settled outcome of one Source.
type Result struct {
	Source string

	// Response is nil when the source is unavailable this cycle.
	Response *session.Response

	// Err explains a nil Response.
	Err error

	Attempts int
	Duration time.Duration
}

// OK reports whether the source produced a response.
func (r Result) OK() bool { return r.Response != nil }

// SessionChecker is the only credential capability the fetcher uses.
type SessionChecker interface {
	EnsureValid(ctx context.Context) bool
}

// invalidator is implemented by checkers that can be told the upstream
// rejected the session.
type invalidator interface {
	Invalidate()
}

// Config controls retry and pacing.
type Config struct {
	// MaxAttempts per source. Default 3.
	MaxAttempts int

	// BaseDelay is the first backoff; retry n waits BaseDelay * 2^(n-1).
	// Default 1s.
	BaseDelay time.Duration

	// RequestsPerSecond paces all requests across sources. 0 disables.
	RequestsPerSecond float64

	// Burst for the pacing limiter. Default 1.
	Burst int

	// Sleep waits between attempts. nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns 3 attempts with a 1s base delay and no pacing.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: time.Second}
}

// Fetcher runs sources concurrently against a session.Gateway.
type Fetcher struct {
	gateway session.Gateway
	checker SessionChecker
	cfg     Config
	limiter *rate.Limiter
	logger  *logging.Logger
	metrics *observability.Metrics
}

// New builds a Fetcher.
//
// # Inputs
//
//   - gateway: performs requests.
//   - checker: consulted for auth-sensitive sources only. nil treats every
//     session as valid.
//   - cfg: zero fields take DefaultConfig values.
//   - metrics: may be nil.
func New(gateway session.Gateway, checker SessionChecker, cfg Config, logger *logging.Logger, metrics *observability.Metrics) *Fetcher {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	f := &Fetcher{
		gateway: gateway,
		checker: checker,
		cfg:     cfg,
		logger:  logger.With("component", "fetcher"),
		metrics: metrics,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return f
}

// Stream dispatches every source and returns a channel of results in
// completion order.
//
// # Description
//
// One goroutine per source. The channel is buffered to len(sources), so
// senders never block, and is closed after the last source settles. Every
// source produces exactly one Result.
//
// # Limitations
//
// Cancelling ctx ends backoff sleeps and in-flight requests early; the
// affected sources still produce a Result carrying ctx.Err().
func (f *Fetcher) Stream(ctx context.Context, sources []Source) <-chan Result {
	out := make(chan Result, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			out <- f.safeFetch(ctx, src)
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// FetchAll runs Stream and collects every result.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) []Result {
	results := make([]Result, 0, len(sources))
	for r := range f.Stream(ctx, sources) {
		results = append(results, r)
	}
	return results
}

func (f *Fetcher) safeFetch(ctx context.Context, src Source) (res Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			f.logger.Error("fetch panicked", "source", src.Name, "panic", p)
			res = Result{Source: src.Name, Err: fmt.Errorf("fetch %s panicked: %v", src.Name, p)}
		}
		res.Duration = time.Since(start)
		f.metrics.RecordFetch(src.Name, res.OK(), res.Duration)
	}()
	return f.fetchWithRetry(ctx, src)
}

// fetchWithRetry runs the attempt loop for one source.
func (f *Fetcher) fetchWithRetry(ctx context.Context, src Source) Result {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerFetch, "fetch."+src.Name,
		trace.WithAttributes(
			attribute.String("source", src.Name),
			attribute.Bool("auth_sensitive", src.AuthSensitive),
		),
	)
	defer span.End()

	log := f.logger.With("source", src.Name)
	res := Result{Source: src.Name}

	if src.AuthSensitive && !f.sessionValid(ctx) {
		f.metrics.RecordAttempt(src.Name, outcomeAuthUnavailable)
		log.Warn("session invalid before first attempt, source unavailable")
		res.Err = ErrAuthUnavailable
		telemetry.RecordError(span, res.Err)
		return res
	}

	var lastErr error
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := f.cfg.BaseDelay * time.Duration(1<<(attempt-1))
			log.Warn("fetch retry", "attempt", attempt+1, "max_attempts", f.cfg.MaxAttempts,
				"backoff", delay, "error", lastErr)
			if err := f.cfg.Sleep(ctx, delay); err != nil {
				res.Err = err
				telemetry.RecordError(span, err)
				return res
			}
			if src.AuthSensitive && !f.sessionValid(ctx) {
				f.metrics.RecordAttempt(src.Name, outcomeAuthUnavailable)
				log.Warn("session could not be refreshed, source unavailable", "attempt", attempt+1)
				res.Err = fmt.Errorf("%w: %v", ErrAuthUnavailable, lastErr)
				telemetry.RecordError(span, res.Err)
				return res
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				res.Err = err
				telemetry.RecordError(span, err)
				return res
			}
		}

		res.Attempts = attempt + 1
		log.Debug("fetch attempt", "attempt", res.Attempts, "url", src.Request.URL)
		resp, err := f.gateway.Do(ctx, src.Request)

		switch {
		case err != nil && ctx.Err() != nil:
			res.Err = ctx.Err()
			telemetry.RecordError(span, res.Err)
			return res

		case err != nil && !errors.Is(err, session.ErrTransport):
			f.metrics.RecordAttempt(src.Name, outcomeFatal)
			log.Error("fetch failed, not retryable", "error", err)
			res.Err = err
			telemetry.RecordError(span, err)
			return res

		case err != nil:
			f.metrics.RecordAttempt(src.Name, outcomeTransport)
			lastErr = err

		case src.AuthSensitive && isAuthRejection(resp.StatusCode):
			f.metrics.RecordAttempt(src.Name, outcomeAuthRejected)
			if inv, ok := f.checker.(invalidator); ok {
				inv.Invalidate()
			}
			lastErr = fmt.Errorf("%w: status %d", session.ErrAuthExpired, resp.StatusCode)

		default:
			f.metrics.RecordAttempt(src.Name, outcomeOK)
			log.Debug("fetch complete", "status", resp.StatusCode, "bytes", len(resp.Body), "attempts", res.Attempts)
			res.Response = resp
			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
			telemetry.SetSpanOK(span)
			return res
		}
	}

	log.Error("fetch retries exhausted", "attempts", res.Attempts, "error", lastErr)
	res.Err = fmt.Errorf("%w after %d attempts: %v", ErrExhausted, res.Attempts, lastErr)
	telemetry.RecordError(span, res.Err)
	return res
}

func (f *Fetcher) sessionValid(ctx context.Context) bool {
	if f.checker == nil {
		return true
	}
	return f.checker.EnsureValid(ctx)
}

func isAuthRejection(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
