package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/db"
	"github.com/Simplici0/filaprint/internal/printjob"
	"github.com/Simplici0/filaprint/internal/storage"
)

// LoadJobs reads the user's prints dated at or after since (all prints when
// since is nil), oldest first.
func LoadJobs(ctx context.Context, q db.Querier, userID int64, since *time.Time) ([]Job, error) {
	query := `
		SELECT j.name, j.status, COALESCE(s.material, ''), j.date, j.duration_minutes, j.filament_used_g,
			j.calculated_cost_filament, j.calculated_cost_energy,
			p.id, COALESCE(p.name, ''), COALESCE(p.power_consumption_watts, 0),
			COALESCE(j.model_file, '')
		FROM print_jobs j
		LEFT JOIN spools s ON s.id = j.spool_id
		LEFT JOIN printers p ON p.id = j.printer_id
		WHERE j.user_id = ?`
	args := []any{userID}
	if since != nil {
		query += ` AND j.date >= ?`
		args = append(args, db.FormatTime(*since))
	}
	query += ` ORDER BY j.date ASC, j.id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			job       Job
			status    string
			date      string
			printerID sql.NullInt64
		)
		if err := rows.Scan(&job.Name, &status, &job.Material, &date, &job.DurationMinutes, &job.FilamentUsedG,
			&job.CostTotal, &job.CostEnergy,
			&printerID, &job.PrinterName, &job.PrinterWatts,
			&job.ModelFile); err != nil {
			return nil, fmt.Errorf("scan analytics job: %w", err)
		}
		job.Status = printjob.Status(status)
		if printerID.Valid {
			id := printerID.Int64
			job.PrinterID = &id
		}
		if job.Date, err = db.ParseTime(date); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics jobs: %w", err)
	}
	return jobs, nil
}

// Service builds reports from the database, rescanning the window on every
// call.
type Service struct {
	db    *sql.DB
	files storage.Storage
	log   *zap.Logger
	now   func() time.Time
}

func NewService(database *sql.DB, files storage.Storage, log *zap.Logger, now func() time.Time) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{db: database, files: files, log: log, now: now}
}

func (s *Service) Report(ctx context.Context, userID int64, w Window) (Report, error) {
	jobs, err := LoadJobs(ctx, s.db, userID, w.Since(s.now()))
	if err != nil {
		return Report{}, err
	}

	var size Sizer
	if s.files != nil {
		size = s.files.Size
	}

	report := Aggregate(ctx, jobs, size)
	report.Range = w.String()

	s.log.Debug("analytics report built",
		zap.Int64("user_id", userID),
		zap.String("range", report.Range),
		zap.Int("prints", report.TotalPrints),
	)
	return report, nil
}
