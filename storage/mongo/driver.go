// Package mongo implements the episodic tier over a networked MongoDB
// collection. The teacher's go.mod carries go.mongodb.org/mongo-driver/v2
// without using it anywhere (agentflow has no document-store tier); this
// package is new code adapted to the same Ping/Close lifecycle as
// the SQL drivers for consistency, grounded on internal/database/pool.go's
// PoolManager shape rather than any existing Mongo usage in the teacher.
package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Config holds the connection parameters for the episodic collection.
type Config struct {
	URI                 string
	Database            string
	Collection          string
	HealthCheckInterval time.Duration
}

// DefaultConfig returns sane defaults for a local MongoDB instance.
func DefaultConfig() Config {
	return Config{
		URI:                 "mongodb://localhost:27017",
		Database:            "cortexmem",
		Collection:          "episodic_events",
		HealthCheckInterval: 30 * time.Second,
	}
}

// Driver owns the shared Mongo client and the episodic collection handle.
type Driver struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Open connects to cfg.URI and ensures the compound (user_id,
// occurred_at) index the RecurringCandidates/ByUser queries rely on.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Driver, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "occurred_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: create index: %w", err)
	}

	d := &Driver{client: client, coll: coll, logger: logger.With(zap.String("component", "storage.mongo"))}
	if cfg.HealthCheckInterval > 0 {
		go d.healthLoop(cfg.HealthCheckInterval)
	}
	return d, nil
}

// OpenWithCollection wraps an already-open collection handle, used by
// tests against an in-process fake or a pre-provisioned test database.
func OpenWithCollection(client *mongo.Client, coll *mongo.Collection, logger *zap.Logger) *Driver {
	return &Driver{client: client, coll: coll, logger: logger.With(zap.String("component", "storage.mongo"))}
}

// EpisodicRepo returns the memory.EpisodicRepo backed by this collection.
func (d *Driver) EpisodicRepo() *EpisodicRepo {
	return &EpisodicRepo{coll: d.coll}
}

func (d *Driver) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("mongo: driver is closed")
	}
	return d.client.Ping(ctx, nil)
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.client.Disconnect(ctx)
}

func (d *Driver) healthLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
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
			d.logger.Warn("mongo health check failed", zap.Error(err))
		}
		cancel()
	}
}
