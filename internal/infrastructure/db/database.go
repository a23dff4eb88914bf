package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ueckoken/kagi/configs"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations
var migrationsFS embed.FS

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

type Database struct {
	DB     *sqlx.DB
	Driver string
}

// NewDatabase opens the audit database described by cfg and applies pool settings.
// For sqlite, cfg.DSN is a file path.
func NewDatabase(cfg *configs.AuditConfig) (*Database, error) {
	var (
		dbx *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite:
		dbx, err = openSQLite(cfg.DSN)
	case DriverPostgres:
		dbx, err = sqlx.Open(DriverPostgres, cfg.DSN)
		if err == nil {
			applyPool(dbx, cfg)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Use PingContext with timeout to avoid hanging at startup
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(ctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: dbx, Driver: cfg.Driver}, nil
}

func openSQLite(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	dbx, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	// single writer
	dbx.SetMaxOpenConns(1)
	dbx.SetMaxIdleConns(1)
	dbx.SetConnMaxLifetime(0)
	return dbx, nil
}

func applyPool(dbx *sqlx.DB, cfg *configs.AuditConfig) {
	if cfg.MaxOpenConns > 0 {
		dbx.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		dbx.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		dbx.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func (d *Database) Close() error {
	return d.DB.Close()
}

// Rebind converts a query written with ? placeholders to the driver's bindvar style.
func (d *Database) Rebind(query string) string {
	return d.DB.Rebind(query)
}

// Migrate applies the embedded schema for the open driver.
func (d *Database) Migrate() error {
	var (
		driver database.Driver
		err    error
	)
	switch d.Driver {
	case DriverSQLite:
		driver, err = sqlite.WithInstance(d.DB.DB, &sqlite.Config{})
	case DriverPostgres:
		driver, err = postgres.WithInstance(d.DB.DB, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported database driver %q", d.Driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+d.Driver)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.Driver, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
