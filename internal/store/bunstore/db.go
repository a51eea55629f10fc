package bunstore

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open connects to the agenda database. postgres:// and postgresql:// DSNs
// go through pgx; anything else is treated as a local SQLite DSN such as
// "file:agenda.db".
func Open(dsn string, pool PoolConfig) (*bun.DB, error) {
	driverName := "pgx"
	var d schema.Dialect = pgdialect.New()
	if !IsPostgresDSN(dsn) {
		driverName = sqliteshim.ShimName
		d = sqlitedialect.New()
		// SQLite has a single writer; one connection also keeps
		// in-memory databases alive across queries.
		if pool.MaxOpenConns <= 0 || pool.MaxOpenConns > 1 {
			pool.MaxOpenConns = 1
		}
		if pool.MaxIdleConns > pool.MaxOpenConns {
			pool.MaxIdleConns = pool.MaxOpenConns
		}
		pool.ConnMaxLifetime = 0
		pool.ConnMaxIdleTime = 0
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return bun.NewDB(sqlDB, d), nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func IsPostgresDSN(dsn string) bool {
	dsn = strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func isSQLite(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.SQLite
}
