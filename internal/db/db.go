package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/unklstewy/ads-bturns/pkg/config"
)

//go:embed schema_postgres.sql schema_sqlite.sql
var schemaSQL embed.FS

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps a database connection with helper methods.
// Queries are written with ? placeholders and rebound for the driver.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
	driver string
}

// Connect opens and pings the database selected by cfg.Driver.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)

	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	switch driver {
	case DriverPostgres:
		connStr := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.Database,
			cfg.SSLMode,
		)
		sqlDB, err = sql.Open("postgres", connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)

	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite driver requires a database path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		sqlDB, err = sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// One writer avoids SQLITE_BUSY between the poller and the sweep
		sqlDB.SetMaxOpenConns(1)

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=30000"} {
			if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
				sqlDB.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	return &DB{
		DB:     sqlDB,
		config: cfg,
		driver: driver,
	}, nil
}

// Driver returns the name of the connected driver.
func (db *DB) Driver() string {
	return db.driver
}

// InitSchema creates the ledger tables if they do not exist.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema_" + db.driver + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	for _, stmt := range strings.Split(string(schemaBytes), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	return nil
}

// Stats returns ledger statistics.
func (db *DB) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)

	queries := []struct {
		key   string
		query string
	}{
		{"position_reports", `SELECT COUNT(*) FROM position_reports`},
		{"active_tracks", `SELECT COUNT(DISTINCT track_id) FROM position_reports`},
		{"turn_events", `SELECT COUNT(*) FROM turn_events`},
	}
	for _, q := range queries {
		var n int64
		if err := db.QueryRowContext(ctx, q.query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", q.key, err)
		}
		stats[q.key] = n
	}

	return stats, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// toMillis and fromMillis store instants as Unix milliseconds, which both
// drivers compare and aggregate the same way.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
