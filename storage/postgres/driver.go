package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cortexmem/engine/memory"
)

// PoolConfig mirrors internal/database/pool.go's PoolConfig.
type PoolConfig struct {
	MaxIdleConns        int
	MaxOpenConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	HealthCheckInterval time.Duration
}

// DefaultPoolConfig mirrors the teacher's DefaultPoolConfig.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Driver owns the pooled Postgres connection, grounded on
// internal/database/pool.go's PoolManager.
type Driver struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	vectorDim int
}

// Open connects to dsn, configures the pool, and starts the health loop
// when HealthCheckInterval > 0. It runs no migrations: the whole schema,
// pgvector columns included, comes from the embedded SQL migrations
// applied by Migrate in migrate.go.
func Open(dsn string, cfg PoolConfig, vectorDim int, logger *zap.Logger) (*Driver, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	d := &Driver{
		db:        db,
		sqlDB:     sqlDB,
		logger:    logger.With(zap.String("component", "storage.postgres")),
		vectorDim: vectorDim,
	}
	if cfg.HealthCheckInterval > 0 {
		go d.healthLoop(cfg.HealthCheckInterval)
	}
	return d, nil
}

// OpenWithGormDB wraps an already-open *gorm.DB, used by tests to inject
// a go-sqlmock-backed connection without a live Postgres server.
func OpenWithGormDB(db *gorm.DB, logger *zap.Logger, vectorDim int) (*Driver, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: get sql.DB: %w", err)
	}
	return &Driver{db: db, sqlDB: sqlDB, logger: logger.With(zap.String("component", "storage.postgres")), vectorDim: vectorDim}, nil
}

// Bundle returns the four tier repositories backed by this connection.
func (d *Driver) Bundle() memory.RepoBundle {
	return memory.RepoBundle{
		Working:    &WorkingRepo{db: d.db},
		Semantic:   &SemanticRepo{db: d.db, vectorDim: d.vectorDim},
		Episodic:   &EpisodicRepo{db: d.db, vectorDim: d.vectorDim},
		Procedural: &ProceduralRepo{db: d.db},
	}
}

func (d *Driver) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("postgres: pool is closed")
	}
	return d.sqlDB.PingContext(ctx)
}

func (d *Driver) Stats() sql.DBStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sqlDB.Stats()
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.sqlDB.Close()
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
			d.logger.Warn("database health check failed", zap.Error(err))
		}
		cancel()
	}
}
