// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
)

// BrowserConfig configures a BrowserRefresher.
type BrowserConfig struct {
	// ControlURL connects to an already running browser when set.
	// Otherwise a browser is launched per refresh.
	ControlURL string

	// Headless applies to launched browsers only.
	Headless bool

	// TargetURL is the page whose load completes the sign-in redirect chain.
	TargetURL string

	// WaitTimeout bounds navigation and load. Default 2m.
	WaitTimeout time.Duration
}

// BrowserRefresher signs in by loading TargetURL in a real browser, which
// follows the single-sign-on redirects using the browser's own credentials,
// then copies the resulting cookies into the gateway.
type BrowserRefresher struct {
	cfg    BrowserConfig
	sink   CookieSink
	logger *logging.Logger
}

// NewBrowserRefresher returns a refresher that installs cookies into sink.
func NewBrowserRefresher(cfg BrowserConfig, sink CookieSink, logger *logging.Logger) *BrowserRefresher {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 2 * time.Minute
	}
	return &BrowserRefresher{cfg: cfg, sink: sink, logger: logger.With("component", "browser_refresher")}
}

// Refresh drives one sign-in.
//
// # Outputs
//
//   - error: wraps ErrCollaboratorUnavailable when no browser can be
//     launched or reached; a plain error when the page never loads or
//     yields no cookies.
func (r *BrowserRefresher) Refresh(ctx context.Context) error {
	controlURL := r.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).Headless(r.cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("%w: launch browser: %v", ErrCollaboratorUnavailable, err)
		}
		defer l.Kill()
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("%w: connect to browser: %v", ErrCollaboratorUnavailable, err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: r.cfg.TargetURL})
	if err != nil {
		return fmt.Errorf("open %s: %w", r.cfg.TargetURL, err)
	}
	defer page.Close()

	if err := page.Timeout(r.cfg.WaitTimeout).WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s: %w", r.cfg.TargetURL, err)
	}

	res, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return fmt.Errorf("get cookies: %w", err)
	}
	if len(res.Cookies) == 0 {
		return fmt.Errorf("browser produced no cookies for %s", r.cfg.TargetURL)
	}

	cookies := make([]*http.Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		cookies = append(cookies, networkCookie(c))
	}
	r.logger.Info("browser sign-in complete", "cookies", len(cookies))
	return r.sink.ImportCookies(cookies)
}

func networkCookie(c *proto.NetworkCookie) *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if c.Expires > 0 {
		hc.Expires = time.Unix(int64(c.Expires), 0)
	}
	return hc
}
