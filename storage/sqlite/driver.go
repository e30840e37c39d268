package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cortexmem/engine/memory"
)

// Driver owns the shared *gorm.DB connection and the background health
// check, grounded on internal/database/pool.go's PoolManager. A
// SPEC_FULL.md supplement: not named by spec.md, not excluded — a
// networked-style driver without a health check is not idiomatic here.
type Driver struct {
	db     *gorm.DB
	logger *zap.Logger

	once        sync.Once
	stopHealth  chan struct{}
}

// Open connects to path (a file path, or ":memory:") and runs
// auto-migration for the four tier tables.
func Open(path string, logger *zap.Logger) (*Driver, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&workingRow{}, &semanticRow{}, &episodicRow{}, &proceduralRow{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Driver{db: db, logger: logger.With(zap.String("component", "storage.sqlite")), stopHealth: make(chan struct{})}, nil
}

// Bundle returns the four tier repositories backed by this connection.
func (d *Driver) Bundle() memory.RepoBundle {
	return memory.RepoBundle{
		Working:    &WorkingRepo{db: d.db, driver: d},
		Semantic:   &SemanticRepo{db: d.db, driver: d},
		Episodic:   &EpisodicRepo{db: d.db, driver: d},
		Procedural: &ProceduralRepo{db: d.db},
	}
}

// Ping verifies the underlying connection is alive.
func (d *Driver) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats exposes the underlying *sql.DB connection pool stats.
func (d *Driver) Stats() (open, idle, inUse int, err error) {
	sqlDB, err := d.db.DB()
	if err != nil {
		return 0, 0, 0, err
	}
	s := sqlDB.Stats()
	return s.OpenConnections, s.Idle, s.InUse, nil
}

// Close closes the underlying connection and stops the health loop.
func (d *Driver) Close() error {
	d.once.Do(func() { close(d.stopHealth) })
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartHealthLoop runs Ping every interval until ctx is cancelled or
// Close is called, logging failures at Warn.
func (d *Driver) StartHealthLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopHealth:
				return
			case <-ticker.C:
				if err := d.Ping(ctx); err != nil {
					d.logger.Warn("health check failed", zap.Error(err))
				}
			}
		}
	}()
}

// vectorWarnOnce is shared by every Driver in the process.
var vectorWarnOnce sync.Once

// warnVectorFallbackOnce logs, exactly once per process, that this
// driver has no native vector index and is falling back to an
// exhaustive scan (spec.md §4.1: "an explicit warning emitted once per
// process").
func (d *Driver) warnVectorFallbackOnce() {
	vectorWarnOnce.Do(func() {
		d.logger.Warn("sqlite driver has no vector index, falling back to exhaustive scan for similarity search")
	})
}
