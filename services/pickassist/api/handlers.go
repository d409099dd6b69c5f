// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/z-Vaughan/PickAssist/pkg/validation"
	"github.com/z-Vaughan/PickAssist/services/pickassist/pipeline"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/store"
	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

type handlers struct {
	store   *store.Store
	trigger CycleTrigger
	logs    LogSource
}

func (h *handlers) health(c *gin.Context) {
	body := gin.H{"status": "ok", "service": ServiceName}
	if snap := h.store.Latest(); snap != nil {
		body["cycle_id"] = snap.CycleID
		body["generated_at"] = snap.GeneratedAt
		body["branch"] = snap.Branch.String()
	}
	c.JSON(http.StatusOK, body)
}

// recentLogs serves the retained warnings and errors, newest last.
func (h *handlers) recentLogs(c *gin.Context) {
	entries := h.logs.Entries()
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

// latest serves the whole snapshot document.
func (h *handlers) latest(c *gin.Context) {
	doc, err := h.store.LatestJSON()
	if err != nil {
		abort(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// source serves one per-source result.
func (h *handlers) source(c *gin.Context) {
	name := c.Param("name")
	if !sources.Known(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source", "source": name, "sources": sources.All})
		return
	}
	snap := h.store.Latest()
	if snap == nil {
		abort(c, store.ErrNoSnapshot)
		return
	}
	res, ok := snap.Sources.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "source has no result this cycle", "source": name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycle_id": snap.CycleID, "source": name, "result": res})
}

// process serves the merged rows of one process path.
func (h *handlers) process(c *gin.Context) {
	path, err := validation.SanitizeProcessPath(c.Param("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap := h.store.Latest()
	if snap == nil {
		abort(c, store.ErrNoSnapshot)
		return
	}
	view := snap.CombinedData
	byPath := func(r table.Row) bool {
		p, _ := r["process_path"].(string)
		return p == path
	}
	processRows := view.ProcessLevel.Filter(byPath)
	areaRows := view.AreaLevel.Filter(byPath)
	if processRows.IsEmpty() && areaRows.IsEmpty() {
		c.JSON(http.StatusNotFound, gin.H{"error": "process path not in current results", "process_path": path})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cycle_id":      snap.CycleID,
		"branch":        snap.Branch,
		"cpt_level":     view.CPTLevel,
		"process_path":  path,
		"process_level": processRows,
		"area_level":    areaRows,
	})
}

// runCycle runs a cycle now and returns its summary.
func (h *handlers) runCycle(c *gin.Context) {
	snap, err := h.trigger.RunNow(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cycle_id": snap.CycleID,
		"branch":   snap.Branch,
		"degraded": snap.Degraded,
		"missing":  snap.Missing,
	})
}

// abort maps an error to a JSON error body.
func abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		status = http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrSessionUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
