// Package dashboard assembles the home page summary.
package dashboard

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/filaprint/internal/db"
	"github.com/Simplici0/filaprint/internal/printer"
	"github.com/Simplici0/filaprint/internal/printjob"
	"github.com/Simplici0/filaprint/internal/spool"
)

const RecentLimit = 5

type Stats struct {
	SpoolCount   int     `json:"spoolCount"`
	TotalWeightG float64 `json:"totalWeightG"`
	// TotalWeightKg keeps three decimals below one kilogram and two above.
	TotalWeightKg  float64 `json:"totalWeightKg"`
	PrinterCount   int     `json:"printerCount"`
	EstimatedValue float64 `json:"estimatedValue"`
	TotalSpent     float64 `json:"totalSpent"`
}

type Summary struct {
	Stats          Stats             `json:"stats"`
	RecentPrints   []printjob.Listed `json:"recentPrints"`
	ActivePrintJob *printjob.Listed  `json:"activePrintJob"`
	Spools         []spool.Spool     `json:"spools"`
	Printers       []printer.Printer `json:"printers"`
}

// Load reads everything the dashboard shows for one user.
func Load(ctx context.Context, q db.Querier, userID int64) (Summary, error) {
	spools, err := spool.ListActive(ctx, q, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("load spools: %w", err)
	}
	printers, err := printer.List(ctx, q, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("load printers: %w", err)
	}
	recent, err := printjob.Recent(ctx, q, userID, RecentLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("load recent prints: %w", err)
	}
	active, err := printjob.Active(ctx, q, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("load active print: %w", err)
	}
	spent, err := printjob.TotalSpent(ctx, q, userID)
	if err != nil {
		return Summary{}, err
	}

	grams := decimal.Zero
	value := decimal.Zero
	for _, s := range spools {
		grams = grams.Add(decimal.NewFromFloat(s.WeightRemainingG))
		if s.WeightInitialG > 0 && s.Price > 0 {
			value = value.Add(decimal.NewFromFloat(s.RemainingValue()))
		}
	}

	kg := grams.Div(decimal.NewFromInt(1000))
	if grams.LessThan(decimal.NewFromInt(1000)) {
		kg = kg.Round(3)
	} else {
		kg = kg.Round(2)
	}

	return Summary{
		Stats: Stats{
			SpoolCount:     len(spools),
			TotalWeightG:   grams.InexactFloat64(),
			TotalWeightKg:  kg.InexactFloat64(),
			PrinterCount:   len(printers),
			EstimatedValue: value.Round(2).InexactFloat64(),
			TotalSpent:     decimal.NewFromFloat(spent).Round(2).InexactFloat64(),
		},
		RecentPrints:   recent,
		ActivePrintJob: active,
		Spools:         spools,
		Printers:       printers,
	}, nil
}
