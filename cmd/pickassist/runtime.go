// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
	"github.com/z-Vaughan/PickAssist/services/pickassist/config"
	"github.com/z-Vaughan/PickAssist/services/pickassist/fetch"
	"github.com/z-Vaughan/PickAssist/services/pickassist/observability"
	"github.com/z-Vaughan/PickAssist/services/pickassist/pipeline"
	"github.com/z-Vaughan/PickAssist/services/pickassist/session"
	"github.com/z-Vaughan/PickAssist/services/pickassist/shift"
	"github.com/z-Vaughan/PickAssist/services/pickassist/site"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/store"
	"github.com/z-Vaughan/PickAssist/services/pickassist/telemetry"
)

// runtime is every long-lived object built from the config.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	recent   *logging.RingExporter
	registry *prometheus.Registry
	metrics  *observability.Metrics
	store    *store.Store
	pipeline *pipeline.Pipeline

	closers []func() error
}

// loadConfig reads the config and applies the --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. recent is nil when the recent-log
// view is disabled.
func newLogger(cfg *config.Config) (logger *logging.Logger, recent *logging.RingExporter) {
	lc := logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "pickassist",
		JSON:    cfg.Logging.JSON,
	}
	if cfg.Logging.Recent > 0 {
		recent = logging.NewRingExporter(cfg.Logging.Recent, logging.ParseLevel(cfg.Logging.RecentLevel))
		lc.Exporter = recent
	}
	return logging.New(lc), recent
}

// newRuntime wires the pipeline and its sinks.
//
// Optional sinks (badger, redis, influx) that fail to start are logged and
// skipped; the pipeline runs without them.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger, recent := newLogger(cfg)
	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		recent:   recent,
		registry: prometheus.NewRegistry(),
	}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = observability.NewMetrics(rt.registry)

	if cfg.Telemetry.Enabled {
		tc := telemetry.DefaultConfig()
		tc.ServiceVersion = version
		tc.TraceExporter = cfg.Telemetry.Exporter
		tc.MetricExporter = "prometheus"
		tc.Registerer = rt.registry
		if cfg.Telemetry.Endpoint != "" {
			tc.OTLPEndpoint = cfg.Telemetry.Endpoint
		}
		tc.OTLPInsecure = cfg.Telemetry.Insecure
		shutdown, err := telemetry.Init(ctx, tc)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		rt.closers = append(rt.closers, func() error { return shutdown(context.Background()) })
	}

	calc, err := shift.NewCalculator(cfg.Site.Code, cfg.Site.Timezone, cfg.Shift.StartHour, cfg.Shift.EndHour, nil)
	if err != nil {
		rt.Close()
		return nil, err
	}

	catalogs, err := rt.catalogSource()
	if err != nil {
		rt.Close()
		return nil, err
	}

	gateway, err := session.NewHTTPGateway(nil, cfg.Fetch.RequestTimeout)
	if err != nil {
		rt.Close()
		return nil, err
	}
	validity := session.NewValidity(
		rt.probe(gateway),
		rt.refresher(gateway),
		logger,
		session.ValidityConfig{
			Window:   cfg.Auth.FreshnessWindow,
			Observer: rt.metrics.RecordRefresh,
		},
	)

	fetcher := fetch.New(gateway, validity, fetch.Config{
		MaxAttempts:       cfg.Fetch.MaxAttempts,
		BaseDelay:         cfg.Fetch.BaseDelay,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:             cfg.Fetch.Burst,
	}, logger, rt.metrics)

	rt.store = store.New(logger)
	rt.attachPersisters(ctx)

	rt.pipeline, err = pipeline.New(pipeline.Deps{
		Fetcher:      fetcher,
		Windows:      calc,
		Catalogs:     catalogs,
		Credentials:  validity,
		Store:        rt.store,
		Endpoints:    cfg.Endpoints,
		CycleTimeout: cfg.Schedule.CycleTimeout,
		Logger:       logger,
		Metrics:      rt.metrics,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) catalogSource() (pipeline.CatalogSource, error) {
	path := rt.cfg.Site.CatalogPath
	if path == "" {
		rt.logger.Warn("no pick-area catalog configured, pick areas will be null")
		return pipeline.StaticCatalog{Catalog: &site.Catalog{Site: rt.cfg.Site.Code}}, nil
	}
	path = expandHome(path)
	if rt.cfg.Site.WatchCatalog {
		w, err := site.NewWatcher(path, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, w.Close)
		return w, nil
	}
	c, err := site.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	for _, pair := range c.Overlaps() {
		rt.logger.Warn("pick areas overlap, first listed wins", "first", pair[0], "second", pair[1])
	}
	return pipeline.StaticCatalog{Catalog: c}, nil
}

// probe checks the console with a cheap call, and the auth portal marker
// when an alias and marker URL are configured.
func (rt *runtime) probe(gw session.Gateway) session.Probe {
	req := sources.ProbeRequest(rt.cfg.Endpoints, rt.cfg.Site.Code)
	status := &session.StatusProbe{Gateway: gw, URL: req.URL, Headers: req.Headers}
	if rt.cfg.Auth.Alias == "" || rt.cfg.Auth.MarkerURL == "" {
		return status
	}
	return session.ChainProbe{
		status,
		&session.MarkerProbe{Gateway: gw, URL: rt.cfg.Auth.MarkerURL, Alias: rt.cfg.Auth.Alias},
	}
}

// refresher tries the cookie file first, then the browser.
func (rt *runtime) refresher(gw *session.HTTPGateway) session.Refresher {
	var chain session.ChainRefresher
	if rt.cfg.Auth.CookieFile != "" {
		chain = append(chain, &session.CookieFileRefresher{Path: expandHome(rt.cfg.Auth.CookieFile), Sink: gw})
	}
	if b := rt.cfg.Auth.Browser; b.Enabled {
		chain = append(chain, session.NewBrowserRefresher(session.BrowserConfig{
			ControlURL:  b.ControlURL,
			Headless:    b.Headless,
			TargetURL:   sources.BrowserTarget(rt.cfg.Endpoints, rt.cfg.Site.Code),
			WaitTimeout: b.WaitTimeout,
		}, gw, rt.logger))
	}
	return chain
}

func (rt *runtime) attachPersisters(ctx context.Context) {
	cfg := rt.cfg
	if cfg.Storage.Enabled {
		bc := store.DefaultBadgerConfig(expandHome(cfg.Storage.Path))
		bc.InMemory = cfg.Storage.InMemory
		bc.SyncWrites = cfg.Storage.SyncWrites
		bc.GCInterval = cfg.Storage.GCInterval
		bc.Logger = rt.logger
		db, err := store.OpenBadger(bc)
		if err != nil {
			rt.logger.Error("snapshot database unavailable", "path", bc.Path, "error", err)
		} else {
			if doc, err := db.LoadLatest(ctx); err == nil {
				rt.store.Restore(doc)
				rt.logger.Info("restored last snapshot", "bytes", len(doc))
			}
			rt.store.AddPersister(db)
			rt.closers = append(rt.closers, db.Close)
		}
	}

	if cfg.Redis.Enabled {
		pub, err := store.NewRedisPublisher(ctx, store.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Key:         cfg.Redis.Key,
			Channel:     cfg.Redis.Channel,
			TTL:         cfg.Redis.TTL,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			rt.logger.Error("redis publisher unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			rt.store.AddPersister(pub)
			rt.closers = append(rt.closers, pub.Close)
		}
	}

	if cfg.Influx.Enabled {
		w, err := store.NewInfluxWriter(ctx, store.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			rt.logger.Error("influx writer unavailable", "url", cfg.Influx.URL, "error", err)
		} else {
			rt.store.AddPersister(w)
			rt.closers = append(rt.closers, func() error { w.Close(); return nil })
		}
	}
}

// Close releases everything in reverse order of creation.
func (rt *runtime) Close() {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		rt.logger.Warn("shutdown incomplete", "error", err)
	}
	rt.logger.Close()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
