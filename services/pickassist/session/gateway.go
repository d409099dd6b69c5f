// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the authenticated HTTP session shared by every fetch
// and the state machine that keeps it fresh.
//
// # Components
//
//   - Gateway: performs one authenticated request.
//   - HTTPGateway: Gateway over net/http with a swappable cookie jar.
//   - Validity: Unknown -> Valid -> Stale -> (refresh) -> Valid.
//   - Probe: decides whether the current session is accepted upstream.
//   - Refresher: obtains new cookies (browser, cookie file).
//
// # Thread Safety
//
// HTTPGateway swaps its session with one atomic store; an in-flight request
// keeps the jar it loaded. Validity serializes refreshes through one mutex
// and a singleflight group.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/publicsuffix"
)

var (
	// ErrTransport wraps network and connection failures. Retryable.
	ErrTransport = errors.New("transport error")

	// ErrAuthExpired reports an upstream rejection of the session
	// (HTTP 401 or 403).
	ErrAuthExpired = errors.New("session rejected")

	// ErrCollaboratorUnavailable reports that the credential collaborator
	// itself cannot run, as opposed to a refresh that ran and failed.
	ErrCollaboratorUnavailable = errors.New("credential collaborator unavailable")
)

// maxBodyBytes caps a single response body.
const maxBodyBytes = 64 << 20

// Request is one upstream call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IsJSON reports whether the response declared a JSON content type.
func (r *Response) IsJSON() bool {
	return strings.HasPrefix(strings.ToLower(r.ContentType), "application/json")
}

// Gateway performs an authenticated request.
type Gateway interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// CookieSink accepts freshly obtained cookies.
type CookieSink interface {
	ImportCookies(cookies []*http.Cookie) error
}

// Session is an immutable snapshot of the cookie state.
type Session struct {
	Jar        http.CookieJar
	Cookies    int
	ImportedAt time.Time
}

// HTTPGateway is a Gateway over net/http.
type HTTPGateway struct {
	transport http.RoundTripper
	timeout   time.Duration
	session   atomic.Pointer[Session]
}

// NewHTTPGateway returns a gateway with an empty session.
//
// transport nil means http.DefaultTransport. timeout bounds each request.
func NewHTTPGateway(transport http.RoundTripper, timeout time.Duration) (*HTTPGateway, error) {
	if transport == nil {
		transport = http.DefaultTransport
	}
	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	g := &HTTPGateway{transport: transport, timeout: timeout}
	g.session.Store(&Session{Jar: jar})
	return g, nil
}

func newJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return jar, nil
}

// Session returns the current session snapshot.
func (g *HTTPGateway) Session() *Session {
	return g.session.Load()
}

// ImportCookies replaces the session with a new jar holding cookies.
//
// Each cookie is filed under its own Domain attribute, so one import may
// cover several hosts. Cookies without a domain are dropped.
func (g *HTTPGateway) ImportCookies(cookies []*http.Cookie) error {
	jar, err := newJar()
	if err != nil {
		return err
	}
	kept := 0
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		jar.SetCookies(&url.URL{Scheme: "https", Host: host}, []*http.Cookie{c})
		kept++
	}
	g.session.Store(&Session{Jar: jar, Cookies: kept, ImportedAt: time.Now()})
	return nil
}

// Do sends req with the current session.
//
// # Outputs
//
//   - *Response: the fully read body for any status code.
//   - error: wraps ErrTransport for network failures; returns ctx.Err()
//     unwrapped when the context ended.
func (g *HTTPGateway) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, "Host") {
			httpReq.Host = v
			continue
		}
		httpReq.Header.Set(k, v)
	}

	client := &http.Client{
		Transport: g.transport,
		Jar:       g.session.Load().Jar,
		Timeout:   g.timeout,
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

var _ Gateway = (*HTTPGateway)(nil)
var _ CookieSink = (*HTTPGateway)(nil)
