// Package spool stores a user's filament spools.
package spool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/filaprint/internal/db"
)

type Material string

const (
	MaterialPLA   Material = "PLA"
	MaterialPETG  Material = "PETG"
	MaterialABS   Material = "ABS"
	MaterialASA   Material = "ASA"
	MaterialTPU   Material = "TPU"
	MaterialNylon Material = "Nylon"
	MaterialPC    Material = "PC"
	MaterialOther Material = "Other"
)

// Materials lists every accepted material in display order.
var Materials = []Material{
	MaterialPLA, MaterialPETG, MaterialABS, MaterialASA,
	MaterialTPU, MaterialNylon, MaterialPC, MaterialOther,
}

func (m Material) IsValid() bool {
	for _, known := range Materials {
		if m == known {
			return true
		}
	}
	return false
}

const DefaultColorHex = "#ffffff"

var ErrNotFound = errors.New("spool not found")

type Spool struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Brand            string    `json:"brand"`
	Material         Material  `json:"material"`
	ColorHex         string    `json:"color_hex"`
	WeightInitialG   float64   `json:"weight_initial_g"`
	WeightRemainingG float64   `json:"weight_remaining_g"`
	Price            float64   `json:"price"`
	PurchasedAt      time.Time `json:"purchased_at"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RemainingValue estimates what the filament left on the spool is worth.
func (s Spool) RemainingValue() float64 {
	if s.WeightInitialG <= 0 {
		return 0
	}
	return s.WeightRemainingG / s.WeightInitialG * s.Price
}

// Input carries the writable fields of a spool. A nil WeightRemainingG means
// "same as initial" on create and "unchanged" on update.
type Input struct {
	Brand            string
	Material         Material
	ColorHex         string
	WeightInitialG   float64
	WeightRemainingG *float64
	Price            float64
	PurchasedAt      *time.Time
}

const selectColumns = `id, user_id, brand, material, color_hex, weight_initial_g, weight_remaining_g,
	price, purchased_at, is_active, created_at, updated_at`

func scan(row interface{ Scan(...any) error }) (Spool, error) {
	var (
		s                                 Spool
		material                          string
		purchasedAt, createdAt, updatedAt string
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Brand, &material, &s.ColorHex, &s.WeightInitialG, &s.WeightRemainingG,
		&s.Price, &purchasedAt, &s.IsActive, &createdAt, &updatedAt); err != nil {
		return Spool{}, err
	}
	s.Material = Material(material)

	var err error
	if s.PurchasedAt, err = db.ParseTime(purchasedAt); err != nil {
		return Spool{}, err
	}
	if s.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return Spool{}, err
	}
	if s.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return Spool{}, err
	}
	return s, nil
}

// ListActive returns the user's active spools, newest first.
func ListActive(ctx context.Context, q db.Querier, userID int64) ([]Spool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM spools
		WHERE user_id = ? AND is_active = TRUE
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query spools: %w", err)
	}
	defer rows.Close()

	spools := make([]Spool, 0)
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spool: %w", err)
		}
		spools = append(spools, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spools: %w", err)
	}
	return spools, nil
}

// Get loads a spool owned by userID. Soft-deleted spools are still returned
// so historic prints can be edited.
func Get(ctx context.Context, q db.Querier, userID, id int64) (Spool, error) {
	s, err := scan(q.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM spools
		WHERE id = ? AND user_id = ?
	`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Spool{}, ErrNotFound
	}
	if err != nil {
		return Spool{}, fmt.Errorf("query spool: %w", err)
	}
	return s, nil
}

func Create(ctx context.Context, q db.Querier, userID int64, in Input, now time.Time) (Spool, error) {
	remaining := in.WeightInitialG
	if in.WeightRemainingG != nil {
		remaining = *in.WeightRemainingG
	}
	purchased := now
	if in.PurchasedAt != nil {
		purchased = *in.PurchasedAt
	}
	color := in.ColorHex
	if color == "" {
		color = DefaultColorHex
	}

	ts := db.FormatTime(now)
	res, err := q.ExecContext(ctx, `
		INSERT INTO spools (user_id, brand, material, color_hex, weight_initial_g, weight_remaining_g,
			price, purchased_at, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?)
	`, userID, in.Brand, string(in.Material), color, in.WeightInitialG, remaining,
		in.Price, db.FormatTime(purchased), ts, ts)
	if err != nil {
		return Spool{}, fmt.Errorf("insert spool: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Spool{}, fmt.Errorf("read spool id: %w", err)
	}
	return Get(ctx, q, userID, id)
}

// Update overwrites the spool's fields. Remaining weight is left alone when
// in.WeightRemainingG is nil, and so is the purchase date.
func Update(ctx context.Context, q db.Querier, userID, id int64, in Input, now time.Time) error {
	color := in.ColorHex
	if color == "" {
		color = DefaultColorHex
	}

	var remaining sql.NullFloat64
	if in.WeightRemainingG != nil {
		remaining = sql.NullFloat64{Float64: *in.WeightRemainingG, Valid: true}
	}

	res, err := q.ExecContext(ctx, `
		UPDATE spools
		SET
			brand = ?,
			material = ?,
			color_hex = ?,
			weight_initial_g = ?,
			weight_remaining_g = COALESCE(?, weight_remaining_g),
			price = ?,
			purchased_at = COALESCE(?, purchased_at),
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`, in.Brand, string(in.Material), color, in.WeightInitialG, remaining,
		in.Price, db.NullTime(in.PurchasedAt), db.FormatTime(now), id, userID)
	if err != nil {
		return fmt.Errorf("update spool: %w", err)
	}
	return requireAffected(res)
}

// SoftDelete hides the spool from listings while keeping it for print history.
func SoftDelete(ctx context.Context, q db.Querier, userID, id int64, now time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE spools
		SET is_active = FALSE, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, db.FormatTime(now), id, userID)
	if err != nil {
		return fmt.Errorf("deactivate spool: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
