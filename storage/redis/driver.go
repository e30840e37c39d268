// Package redis implements the working tier over a networked Redis
// instance, grounded on internal/cache/manager.go's Manager (health-check
// loop, DefaultConfig, Ping/Close). Redis has no native vector index, so
// only the working tier (TTL-native by design) is wired here — the
// semantic/episodic/procedural tiers are served by storage/inprocess
// repos in a mixed RepoBundle (see storage/factory.go).
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config mirrors internal/cache/manager.go's Config.
type Config struct {
	Addr                string
	Password            string
	DB                  int
	DefaultTTL          time.Duration
	MaxRetries          int
	PoolSize            int
	MinIdleConns        int
	HealthCheckInterval time.Duration
}

// DefaultConfig mirrors the teacher's cache.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DefaultTTL:          30 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Driver owns the shared Redis client.
type Driver struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Open dials addr and verifies connectivity with a Ping.
func Open(cfg Config, logger *zap.Logger) (*Driver, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: connect: %w", err)
	}
	d := &Driver{client: client, cfg: cfg, logger: logger.With(zap.String("component", "storage.redis"))}
	if cfg.HealthCheckInterval > 0 {
		go d.healthLoop()
	}
	return d, nil
}

// OpenWithClient wraps an already-constructed *redis.Client, used by
// tests to point at a miniredis instance.
func OpenWithClient(client *redis.Client, cfg Config, logger *zap.Logger) *Driver {
	return &Driver{client: client, cfg: cfg, logger: logger.With(zap.String("component", "storage.redis"))}
}

// WorkingRepo returns the memory.WorkingRepo backed by this connection.
func (d *Driver) WorkingRepo() *WorkingRepo {
	return &WorkingRepo{client: d.client, defaultTTL: d.cfg.DefaultTTL}
}

func (d *Driver) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("redis: driver is closed")
	}
	return d.client.Ping(ctx).Err()
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.client.Close()
}

func (d *Driver) healthLoop() {
	ticker := time.NewTicker(d.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for range ticker.C {
		d.mu.RLock()
		closed := d.closed
		d.mu.RUnlock()
		if closed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.Ping(ctx); err != nil {
			d.logger.Warn("redis health check failed", zap.Error(err))
		}
		cancel()
	}
}
