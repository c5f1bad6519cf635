package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrZeroSpoolWeight is returned when a filament cost would divide by a zero
// initial spool weight.
var ErrZeroSpoolWeight = errors.New("spool initial weight is zero; filament cost is undefined")

// SpoolInput is the spool side of a job cost.
type SpoolInput struct {
	Price          float64
	WeightInitialG float64
}

// JobInput is the per-job usage side of a cost.
type JobInput struct {
	FilamentUsedG   float64
	DurationMinutes float64
	// PrinterWattage is zero when the printer is unknown or has no rating.
	PrinterWattage float64
	// ElectricityRate is in currency per kWh.
	ElectricityRate float64
	// ManualCost, when set, is the whole job cost.
	ManualCost *float64
}

// Breakdown splits a job cost into its parts.
type Breakdown struct {
	FilamentCost float64
	EnergyCost   float64
}

// Result groups the full cost output.
type Result struct {
	Breakdown Breakdown
	Total     float64
	Manual    bool
}

// Calculate computes the filament, energy and total cost of a job.
//
// Energy cost is always computed, even when a manual cost overrides the total,
// so it can be tracked on its own. Under a manual cost the filament share is
// recorded as the manual amount.
func Calculate(spool SpoolInput, job JobInput) (Result, error) {
	energyCost := EnergyCost(job.PrinterWattage, job.DurationMinutes, job.ElectricityRate)

	if job.ManualCost != nil {
		return Result{
			Breakdown: Breakdown{FilamentCost: *job.ManualCost, EnergyCost: energyCost},
			Total:     *job.ManualCost,
			Manual:    true,
		}, nil
	}

	filamentCost, err := FilamentCost(spool.Price, spool.WeightInitialG, job.FilamentUsedG)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Breakdown: Breakdown{FilamentCost: filamentCost, EnergyCost: energyCost},
		Total:     filamentCost + energyCost,
	}, nil
}

// FilamentCost is the spool price per gram times the grams used.
func FilamentCost(price, weightInitialG, usedG float64) (float64, error) {
	if weightInitialG == 0 {
		return 0, ErrZeroSpoolWeight
	}
	return (price / weightInitialG) * usedG, nil
}

// EnergyCost is kW × hours × rate.
func EnergyCost(watts, minutes, ratePerKWh float64) float64 {
	return (watts / 1000.0) * (minutes / 60.0) * ratePerKWh
}

// WattHours is the electricity drawn by a printer over a duration.
func WattHours(watts, minutes float64) float64 {
	return watts * (minutes / 60.0)
}

// Rounded returns the result with every amount rounded to cents, the precision
// job costs are stored at.
func (r Result) Rounded() Result {
	return Result{
		Breakdown: Breakdown{
			FilamentCost: Round2(r.Breakdown.FilamentCost),
			EnergyCost:   Round2(r.Breakdown.EnergyCost),
		},
		Total:  Round2(r.Total),
		Manual: r.Manual,
	}
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
