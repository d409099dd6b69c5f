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
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the snapshot publisher.
type RedisConfig struct {
	Addr        string
	Key         string
	Channel     string
	TTL         time.Duration
	DialTimeout time.Duration
}

// announcement is the pub/sub message sent after each cycle. Subscribers
// read the full document from Key.
type announcement struct {
	CycleID     string    `json:"cycle_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Branch      string    `json:"branch"`
	Missing     []string  `json:"missing"`
	Key         string    `json:"key"`
}

// redisClient is the subset of *goredis.Client the publisher uses.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Close() error
}

// RedisPublisher stores the latest snapshot under a key and announces it
// on a channel.
type RedisPublisher struct {
	rdb     redisClient
	key     string
	channel string
	ttl     time.Duration
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: dial,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisPublisher(rdb, cfg), nil
}

func newRedisPublisher(rdb redisClient, cfg RedisConfig) *RedisPublisher {
	key := cfg.Key
	if key == "" {
		key = "pickassist:snapshot:latest"
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "pickassist:cycles"
	}
	return &RedisPublisher{rdb: rdb, key: key, channel: channel, ttl: cfg.TTL}
}

// Name implements Persister.
func (r *RedisPublisher) Name() string { return "redis" }

// Persist sets the document and publishes an announcement.
func (r *RedisPublisher) Persist(ctx context.Context, snap *Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, doc, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	msg, err := json.Marshal(announcement{
		CycleID:     snap.CycleID,
		GeneratedAt: snap.GeneratedAt,
		Branch:      snap.Branch.String(),
		Missing:     snap.Missing.Names(),
		Key:         r.key,
	})
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, msg).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisPublisher) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
