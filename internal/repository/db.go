package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported journal drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	Driver          string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// Store is an open journal database wrapped in an ent SQL driver.
type Store struct {
	drv    *entsql.Driver
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to the configured database. Postgres goes through a pgx pool,
// sqlite through modernc.org/sqlite and mysql through go-sql-driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	logger.Info("journal.connect", "driver", cfg.Driver)

	var (
		drv  *entsql.Driver
		pool *pgxpool.Pool
		err  error
	)
	switch cfg.Driver {
	case DriverPostgres:
		drv, pool, err = openPostgres(ctx, cfg)
	case DriverSQLite, "":
		drv, err = openSQL(ctx, "sqlite", dialect.SQLite, cfg)
	case DriverMySQL:
		drv, err = openSQL(ctx, "mysql", dialect.MySQL, cfg)
	default:
		err = fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
	if err != nil {
		logger.Error("journal.connect.failed", "driver", cfg.Driver, "error", err)
		return nil, err
	}

	logger.Info("journal.connect.ok", "driver", cfg.Driver, "dialect", drv.Dialect())
	return &Store{drv: drv, pool: pool, logger: logger}, nil
}

func openPostgres(ctx context.Context, cfg Config) (*entsql.Driver, *pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "kyc-extractor"

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, nil, err
	}

	// Wrap pool as *sql.DB for ent
	db := stdlib.OpenDBFromPool(pool)
	return entsql.OpenDB(dialect.Postgres, db), pool, nil
}

func openSQL(ctx context.Context, driverName, dialectName string, cfg Config) (*entsql.Driver, error) {
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if dialectName == dialect.SQLite {
		// one connection keeps in-memory databases shared and writes serialized
		db.SetMaxOpenConns(1)
	} else if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
		db.SetMaxIdleConns(int(cfg.MinConns))
	}
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return entsql.OpenDB(dialectName, db), nil
}

// Dialect reports the ent dialect of the store.
func (s *Store) Dialect() string { return s.drv.Dialect() }

// Close closes the database connections gracefully
func (s *Store) Close() {
	s.logger.Info("journal.close")
	if err := s.drv.Close(); err != nil {
		s.logger.Error("journal.close.failed", "error", err)
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	return s.drv.DB().PingContext(ctx)
}
