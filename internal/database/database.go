package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Connect opens the configured database and pings it with retries.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := OpenSQLite(cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		if err := CreateSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("DATABASE", "SQLite database ready")
		return db, nil
	case "postgres":
		return connectPostgres(ctx, cfg, log)
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	retries := cfg.ConnRetries
	if retries <= 0 {
		retries = 1
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < retries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, retries))
		sqldb, err = sql.Open("postgres", cfg.PostgresDSN)
		if err == nil {
			err = sqldb.PingContext(ctx)
			if err == nil {
				break
			}
			sqldb.Close()
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", retries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// OpenSQLite opens a sqlite database through the shim driver. The pool is
// pinned to one connection so ":memory:" databases are shared.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// CreateSchema creates the tables and indexes from the bun models. Postgres
// deployments use the versioned migrations instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.Event)(nil), (*models.Registration)(nil)}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_events_status_start ON events (status, start_date_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_organizer ON events (organizer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_registrations_event_status ON registrations (event_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_registrations_user ON registrations (user_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_registrations_active ON registrations (event_id, user_id) WHERE status <> 'CANCELLED'`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
