// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the latest reconciled snapshot over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
	"github.com/z-Vaughan/PickAssist/services/pickassist/store"
)

// ServiceName is the otelgin server name.
const ServiceName = "pickassist"

// CycleTrigger runs a cycle on demand. *pipeline.Scheduler implements it.
type CycleTrigger interface {
	RunNow(ctx context.Context) (*store.Snapshot, error)
}

// LogSource lists recent log entries. *logging.RingExporter implements it.
type LogSource interface {
	Entries() []logging.LogEntry
}

// Deps are the collaborators of the router.
type Deps struct {
	Store *store.Store

	// Gatherer backs /metrics. nil uses the default registry.
	Gatherer prometheus.Gatherer

	// Trigger enables POST /v1/cycles when set.
	Trigger CycleTrigger

	// Logs enables GET /v1/logs when set.
	Logs LogSource

	Logger *logging.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(requestLogger(deps.Logger))
	SetupRoutes(router, deps)
	return router
}

// SetupRoutes registers the routes on an existing engine.
func SetupRoutes(router *gin.Engine, deps Deps) {
	h := &handlers{store: deps.Store, trigger: deps.Trigger, logs: deps.Logs}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		results := v1.Group("/results")
		{
			results.GET("", h.latest)
			results.GET("/sources/:name", h.source)
			results.GET("/process/:path", h.process)
		}
		if deps.Trigger != nil {
			v1.POST("/cycles", h.runCycle)
		}
		if deps.Logs != nil {
			v1.GET("/logs", h.recentLogs)
		}
	}
}

// requestLogger logs each request at debug level, and server errors at
// error level.
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "api")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= 500 {
			logger.Error("request failed", args...)
			return
		}
		logger.Debug("request", args...)
	}
}
