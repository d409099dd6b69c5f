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
	"bytes"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// StatusProbe accepts the session when a cheap authenticated endpoint
// answers 200.
type StatusProbe struct {
	Gateway Gateway
	URL     string
	Headers map[string]string
}

// Check issues one GET against URL.
func (p *StatusProbe) Check(ctx context.Context) (bool, error) {
	resp, err := p.Gateway.Do(ctx, Request{Method: http.MethodGet, URL: p.URL, Headers: p.Headers})
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK, nil
}

// MarkerProbe accepts the session when the auth portal greets the
// configured alias with an <h1 class="title">Welcome alias!</h1> marker.
//
// A missing marker and a marker with different text both mean
// unauthenticated.
type MarkerProbe struct {
	Gateway Gateway
	URL     string
	Alias   string
}

// Check fetches URL and looks for the marker.
func (p *MarkerProbe) Check(ctx context.Context) (bool, error) {
	resp, err := p.Gateway.Do(ctx, Request{Method: http.MethodGet, URL: p.URL})
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	text, found, err := findTitleMarker(resp.Body)
	if err != nil {
		return false, fmt.Errorf("parse auth portal page: %w", err)
	}
	if !found {
		return false, nil
	}
	return text == fmt.Sprintf("Welcome %s!", p.Alias), nil
}

// ChainProbe accepts only when every probe accepts.
type ChainProbe []Probe

// Check runs each probe in order and stops at the first rejection.
func (c ChainProbe) Check(ctx context.Context) (bool, error) {
	for _, p := range c {
		ok, err := p.Check(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// findTitleMarker returns the text of the first h1 whose class list contains
// "title".
func findTitleMarker(body []byte) (string, bool, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	var walk func(*html.Node) (string, bool)
	walk = func(n *html.Node) (string, bool) {
		if n.Type == html.ElementNode && n.Data == "h1" && hasClass(n, "title") {
			return strings.TrimSpace(nodeText(n)), true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if text, ok := walk(c); ok {
				return text, true
			}
		}
		return "", false
	}
	text, ok := walk(doc)
	return text, ok, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && slices.Contains(strings.Fields(a.Val), class) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
