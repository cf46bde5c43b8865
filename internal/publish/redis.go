// SPDX-License-Identifier: MIT

// Package publish fans wavemeter snapshots out over Redis.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jbqubit/ndsp-highfinesse/internal/monitor"
)

// ErrNoAddress is returned by New when Redis is not configured.
var ErrNoAddress = errors.New("publish: no redis address configured")

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces the channel and key, e.g. "<prefix>:readings".
	Prefix string

	// TTL applies to the latest-snapshot key. Zero keeps it forever.
	TTL time.Duration
}

// Publisher publishes snapshots on a channel and keeps the latest one in a
// key. It implements monitor.Sink.
type Publisher struct {
	client  *redis.Client
	channel string
	key     string
	ttl     time.Duration
	logger  zerolog.Logger
}

var _ monitor.Sink = (*Publisher)(nil)

// New connects to Redis and checks the connection.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, ErrNoAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Str("prefix", cfg.Prefix).Msg("connected to Redis")
	return newPublisher(client, cfg, logger), nil
}

func newPublisher(client *redis.Client, cfg Config, logger zerolog.Logger) *Publisher {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ndsp:highfinesse"
	}
	return &Publisher{
		client:  client,
		channel: prefix + ":readings",
		key:     prefix + ":latest",
		ttl:     cfg.TTL,
		logger:  logger,
	}
}

// Name implements monitor.Sink.
func (p *Publisher) Name() string { return "redis" }

// Channel returns the pub/sub channel name.
func (p *Publisher) Channel() string { return p.channel }

// Record implements monitor.Sink.
func (p *Publisher) Record(ctx context.Context, snap monitor.Snapshot) error {
	return p.Publish(ctx, snap)
}

// Publish sends the snapshot to subscribers and stores it as the latest one.
func (p *Publisher) Publish(ctx context.Context, snap monitor.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("publish: marshal snapshot: %w", err)
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.key, data, p.ttl)
		pipe.Publish(ctx, p.channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Latest reads back the last published snapshot.
func (p *Publisher) Latest(ctx context.Context) (monitor.Snapshot, bool, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return monitor.Snapshot{}, false, nil
	}
	if err != nil {
		return monitor.Snapshot{}, false, fmt.Errorf("publish: get latest: %w", err)
	}
	var snap monitor.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return monitor.Snapshot{}, false, fmt.Errorf("publish: decode latest: %w", err)
	}
	return snap, true, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
