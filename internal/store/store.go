// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides a single record-store abstraction backed by any
// of three SQL drivers (sqlite, postgres, mysql), selected by DSN scheme
// through a factory, grounded on the teacher's pkg/databases multi-backend
// factory pattern. No other package in this repository imports it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Record is a single (table, key) -> value row with a TTL-evictable
// insertion timestamp.
type Record struct {
	Table     string
	Key       string
	Value     []byte
	InsertedAt time.Time
}

// Backend is a minimal key/value record store with TTL eviction, sufficient
// for audit indexing and workflow execution-record persistence. It
// deliberately avoids exposing SQL to callers.
type Backend interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, table, key string) (Record, bool, error)
	ListTable(ctx context.Context, table string) ([]Record, error)
	EvictOlderThan(ctx context.Context, table string, ttl time.Duration) (int64, error)
	Close() error
}

// Driver identifies the SQL backend in use.
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Open selects a driver from the DSN scheme (e.g. "sqlite://", "postgres://",
// "mysql://") and returns a ready Backend with its schema created.
func Open(ctx context.Context, dsn string) (Backend, error) {
	driver, dataSource, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	db, err := sql.Open(string(driver), dataSource)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}

	b := &sqlBackend{db: db, driver: driver}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func parseDSN(dsn string) (Driver, string, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(dsn, "mysql://"):
		return DriverMySQL, strings.TrimPrefix(dsn, "mysql://"), nil
	default:
		return "", "", fmt.Errorf("unrecognized DSN scheme: %s", dsn)
	}
}

type sqlBackend struct {
	db     *sql.DB
	driver Driver
}

func (b *sqlBackend) migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS hnsc_records (
		tbl TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		inserted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (tbl, key)
	)`
	_, err := b.db.ExecContext(ctx, ddl)
	return err
}

func (b *sqlBackend) placeholder(n int) string {
	if b.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (b *sqlBackend) Put(ctx context.Context, rec Record) error {
	if rec.InsertedAt.IsZero() {
		rec.InsertedAt = time.Now()
	}
	var q string
	switch b.driver {
	case DriverPostgres:
		q = `INSERT INTO hnsc_records (tbl, key, value, inserted_at) VALUES ($1,$2,$3,$4)
			ON CONFLICT (tbl, key) DO UPDATE SET value = EXCLUDED.value, inserted_at = EXCLUDED.inserted_at`
	default:
		q = `INSERT INTO hnsc_records (tbl, key, value, inserted_at) VALUES (?,?,?,?)
			ON DUPLICATE KEY UPDATE value = VALUES(value), inserted_at = VALUES(inserted_at)`
		if b.driver == DriverSQLite {
			q = `INSERT INTO hnsc_records (tbl, key, value, inserted_at) VALUES (?,?,?,?)
				ON CONFLICT(tbl, key) DO UPDATE SET value = excluded.value, inserted_at = excluded.inserted_at`
		}
	}
	_, err := b.db.ExecContext(ctx, q, rec.Table, rec.Key, rec.Value, rec.InsertedAt)
	return err
}

func (b *sqlBackend) Get(ctx context.Context, table, key string) (Record, bool, error) {
	row := b.db.QueryRowContext(ctx, `SELECT tbl, key, value, inserted_at FROM hnsc_records WHERE tbl = `+b.placeholder(1)+` AND key = `+b.placeholder(2), table, key)
	var rec Record
	if err := row.Scan(&rec.Table, &rec.Key, &rec.Value, &rec.InsertedAt); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func (b *sqlBackend) ListTable(ctx context.Context, table string) ([]Record, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT tbl, key, value, inserted_at FROM hnsc_records WHERE tbl = `+b.placeholder(1)+` ORDER BY inserted_at ASC`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Table, &rec.Key, &rec.Value, &rec.InsertedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *sqlBackend) EvictOlderThan(ctx context.Context, table string, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	res, err := b.db.ExecContext(ctx, `DELETE FROM hnsc_records WHERE tbl = `+b.placeholder(1)+` AND inserted_at < `+b.placeholder(2), table, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *sqlBackend) Close() error { return b.db.Close() }
