// Package ledger tracks how much filament is left on a spool.
//
// Weight is only ever taken off a spool when a finished print is logged or a
// print is duplicated. Editing, deleting or cancelling a print never puts
// weight back.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Simplici0/filaprint/internal/db"
)

// ErrSpoolNotFound is returned when the spool to deduct from does not exist.
var ErrSpoolNotFound = errors.New("spool not found")

// Deduct returns the remaining weight after consuming grams, clamped at zero.
func Deduct(remainingG, grams float64) float64 {
	return math.Max(0, remainingG-grams)
}

// Apply deducts grams from the spool's remaining weight and returns the new
// remaining weight. Run it inside the transaction that records the print so
// both writes land together.
func Apply(ctx context.Context, q db.Querier, spoolID int64, grams float64, now time.Time) (float64, error) {
	var remaining float64
	err := q.QueryRowContext(ctx, `SELECT weight_remaining_g FROM spools WHERE id = ?`, spoolID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSpoolNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query spool remaining weight: %w", err)
	}

	remaining = Deduct(remaining, grams)

	if _, err := q.ExecContext(ctx, `
		UPDATE spools
		SET weight_remaining_g = ?, updated_at = ?
		WHERE id = ?
	`, remaining, db.FormatTime(now), spoolID); err != nil {
		return 0, fmt.Errorf("update spool remaining weight: %w", err)
	}

	return remaining, nil
}
