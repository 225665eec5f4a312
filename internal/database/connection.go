package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/smarttransit/ticket-bot/internal/config"
)

// DB interface defines the operations the process needs outside the repositories
type DB interface {
	PingContext(ctx context.Context) error
	Close() error
}

// PostgresDB wraps the sqlx handle shared by all repositories
type PostgresDB struct {
	*sqlx.DB
}

// NewConnection creates a new database connection
func NewConnection(cfg config.DatabaseConfig) (*PostgresDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	connectionURL, err := poolerSafeDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}

	db, err := sqlx.Connect("postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

// pgxOnlyKeys are DSN options lib/pq would forward to the server as runtime
// parameters, which PostgreSQL rejects at startup
var pgxOnlyKeys = []string{"prefer_simple_protocol", "default_query_exec_mode", "statement_cache_capacity"}

// poolerSafeDSN drops pgx-only keys and turns on lib/pq's binary_parameters, which
// sends each parameterized query in one round trip without a named prepared
// statement. Transaction-mode poolers (pgbouncer, Supavisor) need that.
func poolerSafeDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		q := u.Query()
		for _, key := range pgxOnlyKeys {
			q.Del(key)
		}
		if q.Get("binary_parameters") == "" {
			q.Set("binary_parameters", "yes")
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	// key=value form; quoted values may hold spaces, so leave those untouched
	if strings.ContainsRune(dsn, '\'') {
		if !strings.Contains(dsn, "binary_parameters=") {
			dsn += " binary_parameters=yes"
		}
		return dsn, nil
	}
	fields := strings.Fields(dsn)
	kept := fields[:0]
	hasBinary := false
	for _, f := range fields {
		key, _, _ := strings.Cut(f, "=")
		if containsKey(pgxOnlyKeys, key) {
			continue
		}
		if key == "binary_parameters" {
			hasBinary = true
		}
		kept = append(kept, f)
	}
	if !hasBinary {
		kept = append(kept, "binary_parameters=yes")
	}
	return strings.Join(kept, " "), nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
