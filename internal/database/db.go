// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinovest/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// DefaultDSN is used when no store DSN is configured.
const DefaultDSN = "./data/synchroweb.db"

// Open connects to the SQLite account database and applies pending migrations.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	memory := isMemory(dsn)
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite", withDefaultParams(dsn))
	if err != nil {
		return nil, err
	}

	// Every connection to ":memory:" is a separate database.
	if memory {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
	}
	conn.SetConnMaxLifetime(time.Hour)

	if err := configureSQLite(ctx, conn, memory); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := Migrate(ctx, conn.DB); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

func isMemory(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// withDefaultParams appends driver parameters that are not already present.
func withDefaultParams(dsn string) string {
	params := map[string]string{
		"_txlock":              "_txlock=immediate",
		"_pragma=busy_timeout": "_pragma=busy_timeout(5000)",
	}

	for key, param := range params {
		if strings.Contains(dsn, key) {
			continue
		}
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + param
	}

	return dsn
}

func configureSQLite(ctx context.Context, db *sqlx.DB, memory bool) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = 2000",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return nil
}
