// Package sqlite opens SQLite databases through the pure-Go modernc driver.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Open opens the database at dsn (a file path or MemoryDSN).
// Each pragma is passed with the modernc "_pragma=" prefix.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}

	pragmas := "_pragma=busy_timeout(10000)"
	if dsn != MemoryDSN {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	conn, err := sql.Open("sqlite", dsn+sep+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	// A single connection serializes writers and keeps a :memory: database alive
	// for the lifetime of the pool.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return conn, nil
}
