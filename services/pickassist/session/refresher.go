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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// FileCookie is the on-disk form of one cookie, matching what browser
// cookie-export extensions write.
type FileCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expirationDate,omitempty"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
}

// CookieFileRefresher re-reads an exported cookie file on every refresh.
type CookieFileRefresher struct {
	Path string
	Sink CookieSink
}

// Refresh loads Path into Sink. A missing file means the collaborator is
// unavailable; an empty or unparsable file is a plain failure.
func (r *CookieFileRefresher) Refresh(ctx context.Context) error {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: cookie file %s: %v", ErrCollaboratorUnavailable, r.Path, err)
		}
		return fmt.Errorf("read cookie file: %w", err)
	}
	var raw []FileCookie
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse cookie file: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("cookie file %s holds no cookies", r.Path)
	}
	cookies := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, c.httpCookie())
	}
	return r.Sink.ImportCookies(cookies)
}

func (c FileCookie) httpCookie() *http.Cookie {
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

// ChainRefresher tries each refresher in order until one succeeds.
//
// The result wraps ErrCollaboratorUnavailable only when every refresher
// reported it.
type ChainRefresher []Refresher

// Refresh runs the chain.
func (c ChainRefresher) Refresh(ctx context.Context) error {
	if len(c) == 0 {
		return fmt.Errorf("%w: no refresher configured", ErrCollaboratorUnavailable)
	}
	var errs []error
	allUnavailable := true
	for _, r := range c {
		err := r.Refresh(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCollaboratorUnavailable) {
			allUnavailable = false
		}
		errs = append(errs, err)
	}
	joined := errors.Join(errs...)
	if allUnavailable {
		return joined
	}
	return fmt.Errorf("all refreshers failed: %v", joined)
}
