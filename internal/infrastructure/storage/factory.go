package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"PDUFAScanner/internal/config"
	"PDUFAScanner/internal/ports"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ports.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("storage")
	log.Info("creating store", zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case "", "memory":
		return NewMemoryRepository(), nil
	case Postgres.Name:
		return openSQL(ctx, Postgres, cfg.DSN, log)
	case SQLite.Name:
		return openSQL(ctx, SQLite, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func openSQL(ctx context.Context, dialect Dialect, dsn string, logger *zap.Logger) (*SQLRepository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required for %s store", dialect.Name)
	}
	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}

	repo, err := NewSQLRepository(ctx, db, dialect, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}
