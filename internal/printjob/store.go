package printjob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Simplici0/filaprint/internal/db"
)

const jobColumns = `j.id, j.user_id, j.spool_id, j.printer_id, j.name, j.duration_minutes, j.filament_used_g,
	j.calculated_cost_filament, j.calculated_cost_energy, j.status, j.started_at, j.model_file,
	j.notes, j.date, j.created_at, j.updated_at`

type rowScanner interface {
	Scan(...any) error
}

// scanJob reads jobColumns followed by any extra destinations.
func scanJob(row rowScanner, extra ...any) (PrintJob, error) {
	var (
		job                        PrintJob
		printerID                  sql.NullInt64
		status                     string
		startedAt, modelFile       sql.NullString
		date, createdAt, updatedAt string
	)
	dest := append([]any{
		&job.ID, &job.UserID, &job.SpoolID, &printerID, &job.Name, &job.DurationMinutes, &job.FilamentUsedG,
		&job.CostTotal, &job.CostEnergy, &status, &startedAt, &modelFile,
		&job.Notes, &date, &createdAt, &updatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return PrintJob{}, err
	}

	job.Status = Status(status)
	if printerID.Valid {
		id := printerID.Int64
		job.PrinterID = &id
	}
	if modelFile.Valid && modelFile.String != "" {
		file := modelFile.String
		job.ModelFile = &file
	}

	var err error
	if job.StartedAt, err = db.ParseNullTime(startedAt); err != nil {
		return PrintJob{}, err
	}
	if job.Date, err = db.ParseTime(date); err != nil {
		return PrintJob{}, err
	}
	if job.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return PrintJob{}, err
	}
	if job.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return PrintJob{}, err
	}
	return job, nil
}

// Get loads a print owned by userID.
func Get(ctx context.Context, q db.Querier, userID, id int64) (PrintJob, error) {
	job, err := scanJob(q.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM print_jobs j
		WHERE j.id = ? AND j.user_id = ?
	`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return PrintJob{}, ErrNotFound
	}
	if err != nil {
		return PrintJob{}, fmt.Errorf("query print job: %w", err)
	}
	return job, nil
}

const listedSelect = `
	SELECT ` + jobColumns + `,
		s.id, s.brand, s.material, s.color_hex,
		p.id, p.name, p.model
	FROM print_jobs j
	LEFT JOIN spools s ON s.id = j.spool_id
	LEFT JOIN printers p ON p.id = j.printer_id
`

func queryListed(ctx context.Context, q db.Querier, query string, args ...any) ([]Listed, error) {
	rows, err := q.QueryContext(ctx, listedSelect+query, args...)
	if err != nil {
		return nil, fmt.Errorf("query print jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]Listed, 0)
	for rows.Next() {
		var (
			spoolID                   sql.NullInt64
			brand, material, colorHex sql.NullString
			printerID                 sql.NullInt64
			printerName, printerModel sql.NullString
		)
		job, err := scanJob(rows, &spoolID, &brand, &material, &colorHex, &printerID, &printerName, &printerModel)
		if err != nil {
			return nil, fmt.Errorf("scan print job: %w", err)
		}

		listed := Listed{PrintJob: job}
		if spoolID.Valid {
			listed.Spool = &SpoolSummary{
				ID:       spoolID.Int64,
				Brand:    brand.String,
				Material: material.String,
				ColorHex: colorHex.String,
			}
		}
		if printerID.Valid {
			listed.Printer = &PrinterSummary{
				ID:    printerID.Int64,
				Name:  printerName.String,
				Model: printerModel.String,
			}
		}
		jobs = append(jobs, listed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate print jobs: %w", err)
	}
	return jobs, nil
}

// List returns every print of the user, newest first.
func List(ctx context.Context, q db.Querier, userID int64) ([]Listed, error) {
	return queryListed(ctx, q, `
		WHERE j.user_id = ?
		ORDER BY j.date DESC, j.id DESC
	`, userID)
}

// Recent returns the user's latest limit prints.
func Recent(ctx context.Context, q db.Querier, userID int64, limit int) ([]Listed, error) {
	return queryListed(ctx, q, `
		WHERE j.user_id = ?
		ORDER BY j.date DESC, j.id DESC
		LIMIT ?
	`, userID, limit)
}

// ListWithModels returns the user's prints that have a model file attached,
// newest first.
func ListWithModels(ctx context.Context, q db.Querier, userID int64) ([]Listed, error) {
	return queryListed(ctx, q, `
		WHERE j.user_id = ? AND j.model_file IS NOT NULL AND j.model_file <> ''
		ORDER BY j.date DESC, j.id DESC
	`, userID)
}

// Active returns the most recently started In Progress print, if any.
func Active(ctx context.Context, q db.Querier, userID int64) (*Listed, error) {
	jobs, err := queryListed(ctx, q, `
		WHERE j.user_id = ? AND j.status = ?
		ORDER BY j.started_at DESC, j.id DESC
		LIMIT 1
	`, userID, string(StatusInProgress))
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// TotalSpent sums job totals, leaving out prints still in progress.
func TotalSpent(ctx context.Context, q db.Querier, userID int64) (float64, error) {
	var total float64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(calculated_cost_filament), 0)
		FROM print_jobs
		WHERE user_id = ? AND status <> ?
	`, userID, string(StatusInProgress)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum print costs: %w", err)
	}
	return total, nil
}

// modelReferences counts the user's prints pointing at modelFile.
func modelReferences(ctx context.Context, q db.Querier, userID int64, modelFile string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM print_jobs WHERE user_id = ? AND model_file = ?
	`, userID, modelFile).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count model references: %w", err)
	}
	return n, nil
}

func insert(ctx context.Context, q db.Querier, job PrintJob) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO print_jobs (
			user_id, spool_id, printer_id, name, duration_minutes, filament_used_g,
			calculated_cost_filament, calculated_cost_energy, status, started_at, model_file,
			notes, date, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.UserID, job.SpoolID, nullInt(job.PrinterID), job.Name, job.DurationMinutes, job.FilamentUsedG,
		job.CostTotal, job.CostEnergy, string(job.Status), db.NullTime(job.StartedAt), nullString(job.ModelFile),
		job.Notes, db.FormatTime(job.Date), db.FormatTime(job.CreatedAt), db.FormatTime(job.UpdatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert print job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read print job id: %w", err)
	}
	return id, nil
}

func update(ctx context.Context, q db.Querier, job PrintJob) error {
	res, err := q.ExecContext(ctx, `
		UPDATE print_jobs
		SET
			spool_id = ?,
			printer_id = ?,
			name = ?,
			duration_minutes = ?,
			filament_used_g = ?,
			calculated_cost_filament = ?,
			calculated_cost_energy = ?,
			status = ?,
			started_at = ?,
			model_file = ?,
			notes = ?,
			date = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`, job.SpoolID, nullInt(job.PrinterID), job.Name, job.DurationMinutes, job.FilamentUsedG,
		job.CostTotal, job.CostEnergy, string(job.Status), db.NullTime(job.StartedAt), nullString(job.ModelFile),
		job.Notes, db.FormatTime(job.Date), db.FormatTime(job.UpdatedAt), job.ID, job.UserID)
	if err != nil {
		return fmt.Errorf("update print job: %w", err)
	}
	return requireAffected(res)
}

func remove(ctx context.Context, q db.Querier, userID, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM print_jobs WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete print job: %w", err)
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

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
