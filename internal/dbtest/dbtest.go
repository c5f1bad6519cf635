// Package dbtest provides migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Simplici0/filaprint/internal/db"
	"github.com/Simplici0/filaprint/internal/migrations"
)

// New opens a fresh in-memory SQLite database with every migration applied.
func New(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(context.Background(), database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return database
}

// InsertUser adds a Maker user and returns its id.
func InsertUser(t *testing.T, database *sql.DB, username string, electricityRate float64) int64 {
	t.Helper()

	res, err := database.Exec(`
		INSERT INTO users (username, password_hash, role, electricity_rate, created_at)
		VALUES (?, 'x', 'Maker', ?, ?)
	`, username, electricityRate, db.FormatTime(time.Now()))
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return lastID(t, res)
}

// InsertSpool adds an active spool and returns its id.
func InsertSpool(t *testing.T, database *sql.DB, userID int64, material string, price, initial, remaining float64) int64 {
	t.Helper()

	now := db.FormatTime(time.Now())
	res, err := database.Exec(`
		INSERT INTO spools (user_id, brand, material, weight_initial_g, weight_remaining_g, price, purchased_at, created_at, updated_at)
		VALUES (?, 'Prusament', ?, ?, ?, ?, ?, ?, ?)
	`, userID, material, initial, remaining, price, now, now, now)
	if err != nil {
		t.Fatalf("insert spool: %v", err)
	}
	return lastID(t, res)
}

// InsertPrinter adds a printer and returns its id.
func InsertPrinter(t *testing.T, database *sql.DB, userID int64, name string, watts float64) int64 {
	t.Helper()

	now := db.FormatTime(time.Now())
	res, err := database.Exec(`
		INSERT INTO printers (user_id, name, power_consumption_watts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, name, watts, now, now)
	if err != nil {
		t.Fatalf("insert printer: %v", err)
	}
	return lastID(t, res)
}

// SpoolRemaining reads a spool's remaining weight.
func SpoolRemaining(t *testing.T, database *sql.DB, spoolID int64) float64 {
	t.Helper()

	var remaining float64
	if err := database.QueryRow(`SELECT weight_remaining_g FROM spools WHERE id = ?`, spoolID).Scan(&remaining); err != nil {
		t.Fatalf("query spool remaining: %v", err)
	}
	return remaining
}

func lastID(t *testing.T, res sql.Result) int64 {
	t.Helper()

	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}
