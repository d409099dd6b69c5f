// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
)

const (
	latestKey     = "snapshot/latest"
	historyPrefix = "snapshot/cycle/"
)

// BadgerConfig configures the embedded snapshot database.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	SyncWrites bool

	// HistoryTTL is how long per-cycle snapshots are kept. Zero disables
	// history; only the latest snapshot is written.
	HistoryTTL time.Duration

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a rewrite.
	GCDiscardRatio float64

	Logger *logging.Logger
}

// DefaultBadgerConfig returns production defaults.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		HistoryTTL:     24 * time.Hour,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// badgerLogger adapts logging.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerPersister writes snapshots to an embedded BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type BadgerPersister struct {
	db     *badger.DB
	ttl    time.Duration
	logger *logging.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadger opens the database and starts value log GC when configured.
//
// # Outputs
//
//   - *BadgerPersister: caller must Close it.
//   - error: the path is missing or the database cannot be opened.
func OpenBadger(cfg BadgerConfig) (*BadgerPersister, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	if cfg.GCDiscardRatio < 0 || cfg.GCDiscardRatio > 1 {
		return nil, errors.New("gc discard ratio must be between 0 and 1")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	p := &BadgerPersister{
		db:     db,
		ttl:    cfg.HistoryTTL,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go p.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	} else {
		close(p.doneCh)
	}
	return p, nil
}

// Name implements Persister.
func (p *BadgerPersister) Name() string { return "badger" }

// Persist writes the snapshot as the latest document and, with a history
// TTL, under its cycle ID.
func (p *BadgerPersister) Persist(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(latestKey), doc); err != nil {
			return fmt.Errorf("write latest snapshot: %w", err)
		}
		if p.ttl > 0 && snap.CycleID != "" {
			e := badger.NewEntry([]byte(historyPrefix+snap.CycleID), doc).WithTTL(p.ttl)
			if err := txn.SetEntry(e); err != nil {
				return fmt.Errorf("write snapshot history: %w", err)
			}
		}
		return nil
	})
}

// LoadLatest returns the last persisted snapshot document. It returns
// ErrNoSnapshot for an empty database.
func (p *BadgerPersister) LoadLatest(ctx context.Context) ([]byte, error) {
	return p.load(ctx, latestKey)
}

// LoadCycle returns the snapshot document of one cycle.
func (p *BadgerPersister) LoadCycle(ctx context.Context, cycleID string) ([]byte, error) {
	return p.load(ctx, historyPrefix+cycleID)
}

func (p *BadgerPersister) load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	var doc []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		doc, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return doc, nil
}

// Close stops GC and closes the database.
func (p *BadgerPersister) Close() error {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.doneCh
	return p.db.Close()
}

func (p *BadgerPersister) gcLoop(interval time.Duration, ratio float64) {
	defer close(p.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing to collect.
			err := p.db.RunValueLogGC(ratio)
			if err == nil {
				p.logger.Debug("badger value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				p.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}
