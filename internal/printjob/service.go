package printjob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/db"
	"github.com/Simplici0/filaprint/internal/ledger"
	"github.com/Simplici0/filaprint/internal/metrics"
	"github.com/Simplici0/filaprint/internal/pricing"
	"github.com/Simplici0/filaprint/internal/printer"
	"github.com/Simplici0/filaprint/internal/spool"
	"github.com/Simplici0/filaprint/internal/storage"
	"github.com/Simplici0/filaprint/internal/user"
)

// Service runs the print lifecycle. Each operation writes the print and any
// spool deduction in a single transaction.
type Service struct {
	db      *sql.DB
	files   storage.Storage
	log     *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// ServiceParams holds the dependencies of a Service. Log, Metrics and Now are optional.
type ServiceParams struct {
	DB *sql.DB
	// Files is where attached model files live. Nil disables file cleanup.
	Files   storage.Storage
	Log     *zap.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time
}

// NewService builds a Service, filling in defaults for the optional params.
func NewService(p ServiceParams) *Service {
	s := &Service{
		db:      p.DB,
		files:   p.Files,
		log:     p.Log,
		metrics: p.Metrics,
		now:     p.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// costInputs is what a cost calculation needs besides the print itself.
type costInputs struct {
	spool   spool.Spool
	watts   float64
	rate    float64
	printer *int64
}

func (s *Service) loadCostInputs(ctx context.Context, tx *sql.Tx, userID, spoolID int64, printerID *int64) (costInputs, error) {
	sp, err := spool.Get(ctx, tx, userID, spoolID)
	if errors.Is(err, spool.ErrNotFound) {
		return costInputs{}, ErrSpoolNotFound
	}
	if err != nil {
		return costInputs{}, err
	}

	in := costInputs{spool: sp}
	if printerID != nil {
		pr, err := printer.Get(ctx, tx, userID, *printerID)
		if errors.Is(err, printer.ErrNotFound) {
			return costInputs{}, ErrPrinterNotFound
		}
		if err != nil {
			return costInputs{}, err
		}
		in.watts = pr.PowerConsumptionWatts
		id := pr.ID
		in.printer = &id
	}

	in.rate, err = user.ElectricityRate(ctx, tx, userID)
	if err != nil {
		return costInputs{}, fmt.Errorf("load electricity rate: %w", err)
	}
	return in, nil
}

func (in costInputs) price(filamentUsedG, durationMinutes float64, manualCost *float64) (pricing.Result, error) {
	res, err := pricing.Calculate(
		pricing.SpoolInput{Price: in.spool.Price, WeightInitialG: in.spool.WeightInitialG},
		pricing.JobInput{
			FilamentUsedG:   filamentUsedG,
			DurationMinutes: durationMinutes,
			PrinterWattage:  in.watts,
			ElectricityRate: in.rate,
			ManualCost:      manualCost,
		},
	)
	if err != nil {
		return pricing.Result{}, err
	}
	return res.Rounded(), nil
}

// Create logs a print. Finished prints take their filament off the spool
// right away; an In Progress print only records when it started.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (PrintJob, error) {
	if cmd.Status == "" {
		cmd.Status = StatusSuccess
	}
	if cmd.Name == "" {
		cmd.Name = DefaultName
	}

	now := s.now().UTC()
	job := PrintJob{
		UserID:          cmd.UserID,
		SpoolID:         cmd.SpoolID,
		Name:            cmd.Name,
		DurationMinutes: cmd.DurationMinutes,
		FilamentUsedG:   cmd.FilamentUsedG,
		Status:          cmd.Status,
		Notes:           cmd.Notes,
		Date:            now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if cmd.Date != nil {
		job.Date = cmd.Date.UTC()
	}
	if cmd.ModelFile != "" {
		file := cmd.ModelFile
		job.ModelFile = &file
	}
	if cmd.Status == StatusInProgress {
		started := now.Add(-minutes(cmd.ElapsedMinutes))
		job.StartedAt = &started
	}

	printerID := cmd.PrinterID
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		in, err := s.loadCostInputs(ctx, tx, cmd.UserID, cmd.SpoolID, &printerID)
		if err != nil {
			return err
		}
		cost, err := in.price(cmd.FilamentUsedG, cmd.DurationMinutes, cmd.ManualCost)
		if err != nil {
			return err
		}
		job.PrinterID = in.printer
		job.CostTotal = cost.Total
		job.CostEnergy = cost.Breakdown.EnergyCost

		if job.ID, err = insert(ctx, tx, job); err != nil {
			return err
		}

		if job.Status != StatusInProgress {
			if _, err := ledger.Apply(ctx, tx, job.SpoolID, job.FilamentUsedG, now); err != nil {
				return fmt.Errorf("deduct filament: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return PrintJob{}, err
	}

	s.metrics.JobRecorded("create", string(job.Status))
	if job.Status != StatusInProgress {
		s.metrics.Deducted(job.FilamentUsedG)
	}
	s.log.Info("print logged",
		zap.Int64("user_id", job.UserID),
		zap.Int64("print_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Float64("cost", job.CostTotal),
	)
	return job, nil
}

// Edit rewrites a print and recomputes its cost. Spool weight is never
// touched, whatever the status change.
func (s *Service) Edit(ctx context.Context, cmd EditCommand) (PrintJob, error) {
	if cmd.Status == "" {
		cmd.Status = StatusSuccess
	}

	now := s.now().UTC()
	var (
		job        PrintJob
		superseded string
	)
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		job, err = Get(ctx, tx, cmd.UserID, cmd.ID)
		if err != nil {
			return err
		}

		spoolID := job.SpoolID
		if cmd.SpoolID != nil {
			spoolID = *cmd.SpoolID
		}
		printerID := job.PrinterID
		if cmd.PrinterID != nil {
			printerID = cmd.PrinterID
		}

		if cmd.DurationMinutes != nil {
			job.DurationMinutes = *cmd.DurationMinutes
		}
		if cmd.FilamentUsedG != nil {
			job.FilamentUsedG = *cmd.FilamentUsedG
		}

		in, err := s.loadCostInputs(ctx, tx, cmd.UserID, spoolID, printerID)
		if err != nil {
			return err
		}
		cost, err := in.price(job.FilamentUsedG, job.DurationMinutes, cmd.ManualCost)
		if err != nil {
			return err
		}

		job.SpoolID = spoolID
		job.PrinterID = in.printer
		job.Name = cmd.Name
		job.CostTotal = cost.Total
		job.CostEnergy = cost.Breakdown.EnergyCost
		job.Status = cmd.Status
		job.UpdatedAt = now

		switch {
		case cmd.Status != StatusInProgress:
			job.StartedAt = nil
		case cmd.ElapsedMinutes != nil:
			started := now.Add(-minutes(*cmd.ElapsedMinutes))
			job.StartedAt = &started
		}

		if cmd.Date != nil {
			job.Date = cmd.Date.UTC()
		}
		if cmd.Notes != nil {
			job.Notes = *cmd.Notes
		}

		switch {
		case cmd.ModelFile != "":
			if job.ModelFile != nil && *job.ModelFile != cmd.ModelFile {
				superseded = *job.ModelFile
			}
			file := cmd.ModelFile
			job.ModelFile = &file
		case cmd.RemoveModel && job.ModelFile != nil:
			superseded = *job.ModelFile
			job.ModelFile = nil
		}

		return update(ctx, tx, job)
	})
	if err != nil {
		return PrintJob{}, err
	}

	s.metrics.JobRecorded("edit", string(job.Status))
	if superseded != "" {
		s.releaseModel(ctx, job.UserID, superseded)
	}
	return job, nil
}

// Delete removes a print and, when no other print uses it, its model file.
// Filament is not returned to the spool.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	var job PrintJob
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if job, err = Get(ctx, tx, userID, id); err != nil {
			return err
		}
		return remove(ctx, tx, userID, id)
	})
	if err != nil {
		return err
	}

	s.metrics.JobRecorded("delete", string(job.Status))
	if job.ModelFile != nil {
		s.releaseModel(ctx, userID, *job.ModelFile)
	}
	return nil
}

// Duplicate logs the same print again as a fresh, successful print. The cost
// is recomputed from the spool, printer and rate as they are now and the
// filament is taken off the spool again. A manual cost is not carried over.
func (s *Service) Duplicate(ctx context.Context, userID, id int64) (PrintJob, error) {
	now := s.now().UTC()
	var job PrintJob
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		original, err := Get(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		in, err := s.loadCostInputs(ctx, tx, userID, original.SpoolID, original.PrinterID)
		if err != nil {
			return err
		}
		cost, err := in.price(original.FilamentUsedG, original.DurationMinutes, nil)
		if err != nil {
			return err
		}

		job = PrintJob{
			UserID:          userID,
			SpoolID:         original.SpoolID,
			PrinterID:       in.printer,
			Name:            original.Name,
			DurationMinutes: original.DurationMinutes,
			FilamentUsedG:   original.FilamentUsedG,
			CostTotal:       cost.Total,
			CostEnergy:      cost.Breakdown.EnergyCost,
			Status:          StatusSuccess,
			ModelFile:       original.ModelFile,
			Notes:           original.Notes,
			Date:            now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if job.ID, err = insert(ctx, tx, job); err != nil {
			return err
		}

		if _, err := ledger.Apply(ctx, tx, job.SpoolID, job.FilamentUsedG, now); err != nil {
			return fmt.Errorf("deduct filament: %w", err)
		}
		return nil
	})
	if err != nil {
		return PrintJob{}, err
	}

	s.metrics.JobRecorded("duplicate", string(job.Status))
	s.metrics.Deducted(job.FilamentUsedG)
	return job, nil
}

// releaseModel deletes modelFile once no print of the user refers to it.
// Failures are logged and otherwise ignored.
func (s *Service) releaseModel(ctx context.Context, userID int64, modelFile string) {
	if s.files == nil {
		return
	}

	refs, err := modelReferences(ctx, s.db, userID, modelFile)
	if err != nil {
		s.log.Warn("count model references", zap.String("model_file", modelFile), zap.Error(err))
		return
	}
	if refs > 0 {
		return
	}

	if err := s.files.Delete(ctx, modelFile); err != nil {
		s.log.Warn("delete model file", zap.String("model_file", modelFile), zap.Error(err))
		return
	}
	s.log.Info("model file deleted", zap.Int64("user_id", userID), zap.String("model_file", modelFile))
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
