// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package database opens the SQLite file that backs the portal's browser
// sessions and keeps its schema current.
package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinovest/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultDSN is used when no DSN is configured.
const DefaultDSN = "./data/portal.db"

// pragmas run on every pooled connection. Session writes are small and
// frequent, so WAL with NORMAL sync is enough.
var pragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
}

// Open connects to dsn, creating the parent directory of a file database,
// and applies pending migrations.
func Open(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	memory := isMemory(dsn)
	if !memory {
		if err := os.MkdirAll(filepath.Dir(strings.TrimPrefix(pathOf(dsn), "file:")), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	full, err := withDefaults(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", full)
	if err != nil {
		return nil, err
	}

	// Every connection to :memory: is its own empty database.
	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func isMemory(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func pathOf(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	return path
}

// withDefaults adds an immediate transaction lock and the connection
// pragmas to dsn unless its query already sets them.
func withDefaults(dsn string) (string, error) {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse database dsn: %w", err)
	}

	if !q.Has("_txlock") {
		q.Set("_txlock", "immediate")
	}
	set := map[string]bool{}
	for _, p := range q["_pragma"] {
		name, _, _ := strings.Cut(p, "(")
		set[strings.ToLower(strings.TrimSpace(name))] = true
	}
	for _, p := range pragmas {
		name, _, _ := strings.Cut(p, "(")
		if !set[name] {
			q.Add("_pragma", p)
		}
	}
	return path + "?" + q.Encode(), nil
}
