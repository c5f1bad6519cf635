// Package printjob records prints: what was printed, on which printer, from
// which spool, and what it cost.
package printjob

import (
	"errors"
	"fmt"
	"time"
)

// Status is the outcome of a print, or In Progress while it runs.
type Status string

const (
	StatusInProgress Status = "In Progress"
	StatusSuccess    Status = "Success"
	StatusFail       Status = "Fail"
	StatusCancelled  Status = "Cancelled"
)

// Statuses lists every accepted status in display order.
var Statuses = []Status{StatusInProgress, StatusSuccess, StatusFail, StatusCancelled}

// DefaultName is used when a print is logged without a name.
const DefaultName = "Untitled Print"

// Errors returned by the store and the service.
var (
	ErrNotFound        = errors.New("print job not found")
	ErrSpoolNotFound   = errors.New("spool not found")
	ErrPrinterNotFound = errors.New("printer not found")
	ErrInvalidStatus   = errors.New("invalid print status")
)

// ParseStatus maps form input to a Status. Blank input means Success.
func ParseStatus(raw string) (Status, error) {
	if raw == "" {
		return StatusSuccess, nil
	}
	for _, s := range Statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// PrintJob is one logged print with its cost snapshot.
type PrintJob struct {
	ID              int64   `json:"id"`
	UserID          int64   `json:"user_id"`
	SpoolID         int64   `json:"spool_id"`
	PrinterID       *int64  `json:"printer_id"`
	Name            string  `json:"name"`
	DurationMinutes float64 `json:"duration_minutes"`
	FilamentUsedG   float64 `json:"filament_used_g"`
	// CostTotal is filament plus energy, or the manual cost when one was given.
	CostTotal  float64    `json:"calculated_cost_filament"`
	CostEnergy float64    `json:"calculated_cost_energy"`
	Status     Status     `json:"status"`
	StartedAt  *time.Time `json:"started_at"`
	ModelFile  *string    `json:"model_file"`
	Notes      string     `json:"notes"`
	Date       time.Time  `json:"date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SpoolSummary is the spool information shown next to a print.
type SpoolSummary struct {
	ID       int64  `json:"id"`
	Brand    string `json:"brand"`
	Material string `json:"material"`
	ColorHex string `json:"color_hex"`
}

// PrinterSummary is the printer information shown next to a print.
type PrinterSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Listed is a print together with its spool and printer. Printer is nil once
// the printer has been deleted.
type Listed struct {
	PrintJob
	Spool   *SpoolSummary   `json:"spool"`
	Printer *PrinterSummary `json:"printer"`
}

// CreateCommand is a validated request to log a print.
type CreateCommand struct {
	UserID          int64
	Name            string
	SpoolID         int64
	PrinterID       int64
	DurationMinutes float64
	FilamentUsedG   float64
	Status          Status
	// ManualCost replaces the computed total when set.
	ManualCost *float64
	// ElapsedMinutes backdates started_at for an In Progress print.
	ElapsedMinutes float64
	ModelFile      string
	Notes          string
	Date           *time.Time
}

// EditCommand is a validated request to change a print. Nil pointers leave
// the stored value alone.
type EditCommand struct {
	UserID          int64
	ID              int64
	Name            string
	SpoolID         *int64
	PrinterID       *int64
	DurationMinutes *float64
	FilamentUsedG   *float64
	Status          Status
	ManualCost      *float64
	ElapsedMinutes  *float64
	// ModelFile replaces the attached model when non-empty.
	ModelFile   string
	RemoveModel bool
	Notes       *string
	Date        *time.Time
}
