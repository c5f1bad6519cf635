// Package printer stores a user's printers.
package printer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/filaprint/internal/db"
)

const DefaultNozzleDiameterMM = 0.4

var ErrNotFound = errors.New("printer not found")

type Printer struct {
	ID                    int64     `json:"id"`
	UserID                int64     `json:"user_id"`
	Name                  string    `json:"name"`
	Model                 string    `json:"model"`
	NozzleDiameterMM      float64   `json:"nozzle_diameter_mm"`
	PowerConsumptionWatts float64   `json:"power_consumption_watts"`
	BedSizeXMM            *float64  `json:"bed_size_x_mm,omitempty"`
	BedSizeYMM            *float64  `json:"bed_size_y_mm,omitempty"`
	BedSizeZMM            *float64  `json:"bed_size_z_mm,omitempty"`
	ImageURL              string    `json:"image_url"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type Input struct {
	Name                  string
	Model                 string
	NozzleDiameterMM      float64
	PowerConsumptionWatts float64
	BedSizeXMM            *float64
	BedSizeYMM            *float64
	BedSizeZMM            *float64
	ImageURL              string
}

const selectColumns = `id, user_id, name, model, nozzle_diameter_mm, power_consumption_watts,
	bed_size_x_mm, bed_size_y_mm, bed_size_z_mm, image_url, created_at, updated_at`

func scan(row interface{ Scan(...any) error }) (Printer, error) {
	var (
		p                    Printer
		bedX, bedY, bedZ     sql.NullFloat64
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Model, &p.NozzleDiameterMM, &p.PowerConsumptionWatts,
		&bedX, &bedY, &bedZ, &p.ImageURL, &createdAt, &updatedAt); err != nil {
		return Printer{}, err
	}
	p.BedSizeXMM = nullFloat(bedX)
	p.BedSizeYMM = nullFloat(bedY)
	p.BedSizeZMM = nullFloat(bedZ)

	var err error
	if p.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return Printer{}, err
	}
	if p.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return Printer{}, err
	}
	return p, nil
}

// List returns the user's printers ordered by name.
func List(ctx context.Context, q db.Querier, userID int64) ([]Printer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM printers
		WHERE user_id = ?
		ORDER BY name ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query printers: %w", err)
	}
	defer rows.Close()

	printers := make([]Printer, 0)
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate printers: %w", err)
	}
	return printers, nil
}

func Get(ctx context.Context, q db.Querier, userID, id int64) (Printer, error) {
	p, err := scan(q.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM printers
		WHERE id = ? AND user_id = ?
	`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Printer{}, ErrNotFound
	}
	if err != nil {
		return Printer{}, fmt.Errorf("query printer: %w", err)
	}
	return p, nil
}

func Create(ctx context.Context, q db.Querier, userID int64, in Input, now time.Time) (Printer, error) {
	ts := db.FormatTime(now)
	res, err := q.ExecContext(ctx, `
		INSERT INTO printers (user_id, name, model, nozzle_diameter_mm, power_consumption_watts,
			bed_size_x_mm, bed_size_y_mm, bed_size_z_mm, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, userID, in.Name, in.Model, nozzle(in.NozzleDiameterMM), in.PowerConsumptionWatts,
		toNull(in.BedSizeXMM), toNull(in.BedSizeYMM), toNull(in.BedSizeZMM), in.ImageURL, ts, ts)
	if err != nil {
		return Printer{}, fmt.Errorf("insert printer: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Printer{}, fmt.Errorf("read printer id: %w", err)
	}
	return Get(ctx, q, userID, id)
}

func Update(ctx context.Context, q db.Querier, userID, id int64, in Input, now time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE printers
		SET
			name = ?,
			model = ?,
			nozzle_diameter_mm = ?,
			power_consumption_watts = ?,
			bed_size_x_mm = ?,
			bed_size_y_mm = ?,
			bed_size_z_mm = ?,
			image_url = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`, in.Name, in.Model, nozzle(in.NozzleDiameterMM), in.PowerConsumptionWatts,
		toNull(in.BedSizeXMM), toNull(in.BedSizeYMM), toNull(in.BedSizeZMM), in.ImageURL,
		db.FormatTime(now), id, userID)
	if err != nil {
		return fmt.Errorf("update printer: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the printer. Its prints stay, detached from any printer.
func Delete(ctx context.Context, q db.Querier, userID, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM printers WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete printer: %w", err)
	}
	return requireAffected(res)
}

func nozzle(v float64) float64 {
	if v <= 0 {
		return DefaultNozzleDiameterMM
	}
	return v
}

func toNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
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
