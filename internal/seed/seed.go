package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/filaprint/internal/db"
	"github.com/Simplici0/filaprint/internal/password"
	"github.com/Simplici0/filaprint/internal/user"
)

// Config contains the values required by startup seed.
type Config struct {
	AdminUsername string
	AdminPassword string
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run executes the startup seed in an idempotent way.
func Run(ctx context.Context, database *sql.DB, cfg Config, now time.Time) (Stats, error) {
	stats := Stats{}

	err := db.WithTx(ctx, database, func(tx *sql.Tx) error {
		return seedAdmin(ctx, tx, cfg.AdminUsername, cfg.AdminPassword, now, &stats)
	})
	if err != nil {
		return Stats{}, err
	}

	return stats, nil
}

// seedAdmin creates the configured admin, or promotes an existing user of
// that name. An existing password is never overwritten.
func seedAdmin(ctx context.Context, tx *sql.Tx, username, plain string, now time.Time, stats *Stats) error {
	if username == "" || plain == "" {
		return nil
	}

	existing, err := user.GetByUsername(ctx, tx, username)
	switch {
	case err == nil:
		if existing.IsAdmin() {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(user.RoleAdmin), existing.ID); err != nil {
			return fmt.Errorf("promote admin user: %w", err)
		}
		stats.Updates++
		return nil
	case !errors.Is(err, user.ErrNotFound):
		return fmt.Errorf("check admin user existence: %w", err)
	}

	hash, err := password.Hash(plain)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if _, err := user.Create(ctx, tx, username, hash, user.RoleAdmin, now); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}
