// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for PickAssist components.
//
// The logger is layered so the same API serves the CLI and the long-running
// service:
//
//   - Default: console output on stderr (coloured when stderr is a terminal)
//   - Optional: JSON file logging with automatic directory creation
//   - Optional: a LogExporter that receives every entry asynchronously
//
// # Architecture
//
// The backend is a zap core tee. Each destination is a zapcore.Core with its
// own encoder; the exporter sits beside the tee and is fed from log():
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                         Logger                              │
//	│  ┌─────────────┐  ┌─────────────┐  ┌─────────────────────┐ │
//	│  │   stderr    │  │  log file   │  │   LogExporter       │ │
//	│  │  (console)  │  │   (JSON)    │  │   (optional)        │ │
//	│  └─────────────┘  └─────────────┘  └─────────────────────┘ │
//	└─────────────────────────────────────────────────────────────┘
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("cycle complete", "cycle_id", id, "branch", branch)
//	logger.Warn("fetch retry", "source", "Rodeo", "attempt", 2)
//
// # File Logging
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.pickassist/logs",
//	    Service: "pickassist",
//	})
//	defer logger.Close()
//
// This creates log files named `{service}_{date}.log` in JSON format.
//
// # Thread Safety
//
// Logger is safe for concurrent use. zap cores are thread-safe and the
// file and exporter handles are guarded by a mutex on Close.
//
// # Security Considerations
//
// This package does NOT redact anything. Never log cookie values or session
// tokens; log their presence instead:
//
//	logger.Info("session imported", "cookies", len(cookies))
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels, ordered Debug < Info < Warn < Error.
//
// Setting a minimum level filters out all logs below that level.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	// Example: "cycle complete", "catalog reloaded"
	LevelInfo

	// LevelWarn is for recoverable issues.
	// Example: "fetch retry", "source degraded to empty"
	LevelWarn

	// LevelError is for failures the process survives.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// ParseLevel maps a config string onto a Level.
//
// Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) toZapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the Logger behavior.
//
// A zero-value Config writes Info+ messages to stderr in console format.
type Config struct {
	// Level is the minimum level written to every destination.
	Level Level

	// LogDir enables JSON file logging when non-empty. Supports ~ expansion.
	LogDir string

	// Service is attached to every entry as the "service" field and names
	// the log file.
	Service string

	// JSON switches the console destination to the JSON encoder.
	JSON bool

	// Quiet disables the console destination.
	Quiet bool

	// Output replaces stderr as the console destination. Tests use it.
	Output io.Writer

	// Exporter receives every entry at or above Level, asynchronously.
	Exporter LogExporter
}

// =============================================================================
// Export
// =============================================================================

// LogExporter ships log entries to an external system.
//
// Export is called from a goroutine per entry and must be safe for
// concurrent use.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is the exporter-facing form of one log call.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     Level          `json:"level"`
	Message   string         `json:"msg"`
	Service   string         `json:"service,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// =============================================================================
// Logger
// =============================================================================

// Logger is the structured logger handed to every component.
type Logger struct {
	sugar    *zap.SugaredLogger
	config   Config
	file     *os.File
	exporter LogExporter
	fields   []any
	mu       *sync.Mutex
}

// New creates a Logger from config.
//
// # Description
//
// Builds one zap core per enabled destination and tees them. A LogDir that
// cannot be created or opened is skipped silently; console logging still
// works. When every destination is disabled the logger discards output but
// still feeds the exporter.
//
// # Inputs
//
//   - config: destinations and minimum level.
//
// # Outputs
//
//   - *Logger: ready to use. Call Close to flush the file and exporter.
func New(config Config) *Logger {
	level := zap.NewAtomicLevelAt(config.Level.toZapLevel())
	var cores []zapcore.Core

	if !config.Quiet {
		out := config.Output
		colour := false
		if out == nil {
			out = os.Stderr
			colour = !config.JSON && isatty.IsTerminal(os.Stderr.Fd())
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder(config.JSON, colour), zapcore.AddSync(out), level))
	}

	logger := &Logger{
		config:   config,
		exporter: config.Exporter,
		mu:       &sync.Mutex{},
	}

	if config.LogDir != "" {
		logDir := expandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err == nil {
			serviceName := config.Service
			if serviceName == "" {
				serviceName = "pickassist"
			}
			filename := fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02"))
			file, err := os.OpenFile(filepath.Join(logDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				logger.file = file
				cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(file), level))
			}
		}
	}

	var core zapcore.Core
	switch len(cores) {
	case 0:
		core = zapcore.NewNopCore()
	case 1:
		core = cores[0]
	default:
		core = zapcore.NewTee(cores...)
	}

	z := zap.New(core)
	if config.Service != "" {
		z = z.With(zap.String("service", config.Service))
	}
	logger.sugar = z.Sugar()
	return logger
}

// Default returns an Info-level stderr logger for the pickassist service.
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "pickassist",
	})
}

// Nop returns a logger that writes nowhere. Useful in tests.
func Nop() *Logger {
	return New(Config{Quiet: true})
}

// Debug logs at LevelDebug with alternating key/value pairs.
func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, args ...any) { l.log(LevelInfo, msg, args...) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, args ...any) { l.log(LevelWarn, msg, args...) }

// Error logs at LevelError.
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a child logger that adds args to every entry.
//
// The child shares the parent's file and exporter; closing either closes
// both.
func (l *Logger) With(args ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &Logger{
		sugar:    l.sugar.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
		fields:   fields,
		mu:       l.mu,
	}
}

// Close flushes the exporter and syncs and closes the log file.
//
// Returns the first error encountered.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	_ = l.sugar.Sync()

	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
	}

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		l.file = nil
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (l *Logger) log(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.sugar.Debugw(msg, args...)
	case LevelInfo:
		l.sugar.Infow(msg, args...)
	case LevelWarn:
		l.sugar.Warnw(msg, args...)
	case LevelError:
		l.sugar.Errorw(msg, args...)
	}

	if l.exporter != nil && level >= l.config.Level {
		attrs := argsToMap(l.fields)
		for k, v := range argsToMap(args) {
			attrs[k] = v
		}
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   msg,
			Service:   l.config.Service,
			Attrs:     attrs,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.exporter.Export(ctx, entry)
		}()
	}
}

// =============================================================================
// Encoders and helpers
// =============================================================================

func consoleEncoder(asJSON, colour bool) zapcore.Encoder {
	if asJSON {
		return jsonEncoder()
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	if colour {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.MessageKey = "msg"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// argsToMap turns alternating key/value args into a map. Non-string keys
// and a trailing odd value are dropped.
func argsToMap(args []any) map[string]any {
	result := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			result[key] = args[i+1]
		}
	}
	return result
}

// =============================================================================
// Exporters
// =============================================================================

// RingExporter keeps the most recent entries at or above a minimum level
// in memory. It backs the recent-log view of the HTTP API.
type RingExporter struct {
	minLevel Level

	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRingExporter returns a RingExporter holding up to capacity entries.
// A non-positive capacity means 100.
func NewRingExporter(capacity int, minLevel Level) *RingExporter {
	if capacity <= 0 {
		capacity = 100
	}
	return &RingExporter{minLevel: minLevel, entries: make([]LogEntry, capacity)}
}

// Export stores entry, overwriting the oldest once full.
func (e *RingExporter) Export(ctx context.Context, entry LogEntry) error {
	if entry.Level < e.minLevel {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries[e.next] = entry
	e.next = (e.next + 1) % len(e.entries)
	if e.next == 0 {
		e.full = true
	}
	return nil
}

func (e *RingExporter) Flush(ctx context.Context) error { return nil }
func (e *RingExporter) Close() error                    { return nil }

// Entries returns a copy of the retained entries, oldest first.
func (e *RingExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.full {
		return append([]LogEntry(nil), e.entries[:e.next]...)
	}
	out := make([]LogEntry, 0, len(e.entries))
	out = append(out, e.entries[e.next:]...)
	return append(out, e.entries[:e.next]...)
}

var _ LogExporter = (*RingExporter)(nil)
