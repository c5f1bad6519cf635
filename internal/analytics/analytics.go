// Package analytics summarises a user's print history over a time window.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Simplici0/filaprint/internal/pricing"
	"github.com/Simplici0/filaprint/internal/printjob"
)

const (
	DefaultWindowDays = 30
	// TopModelsLimit caps the most-printed model list.
	TopModelsLimit = 5

	unknownPrinterName = "Unknown"
	dayLayout          = "2006-01-02"
)

// ErrInvalidWindow is returned by ParseWindow for an unreadable range.
var ErrInvalidWindow = errors.New("invalid range")

// Window is the span of history a report covers.
type Window struct {
	All  bool
	Days int
}

// ParseWindow reads the "range" query value: blank means the default window,
// "all" means no limit, anything else must be a whole number of days.
func ParseWindow(raw string) (Window, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return Window{Days: DefaultWindowDays}, nil
	case "all":
		return Window{All: true}, nil
	}

	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, raw)
	}
	return Window{Days: days}, nil
}

// Since is the earliest print date included, or nil for the whole history.
func (w Window) Since(now time.Time) *time.Time {
	if w.All {
		return nil
	}
	since := now.AddDate(0, 0, -w.Days)
	return &since
}

func (w Window) String() string {
	if w.All {
		return "all"
	}
	return strconv.Itoa(w.Days)
}

// Job is the slice of a print the aggregation reads.
type Job struct {
	Name            string
	Status          printjob.Status
	Material        string
	Date            time.Time
	DurationMinutes float64
	FilamentUsedG   float64
	CostTotal       float64
	CostEnergy      float64
	PrinterID       *int64
	PrinterName     string
	PrinterWatts    float64
	ModelFile       string
}

// Sizer reports the size in bytes of a stored model file.
type Sizer func(ctx context.Context, path string) (int64, error)

// StatusCounts counts prints per status.
type StatusCounts struct {
	Success    int `json:"success"`
	Fail       int `json:"fail"`
	Cancelled  int `json:"cancelled"`
	InProgress int `json:"inProgress"`
}

// PrinterStat is the print count and total minutes of one printer.
type PrinterStat struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Time  float64 `json:"time"`
}

// ModelCount is how often a print name appears among prints with a model file.
type ModelCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Report is the aggregated view of a window. Day maps are keyed by UTC date.
type Report struct {
	SuccessRate       StatusCounts       `json:"successRate"`
	MaterialUsage     map[string]float64 `json:"materialUsage"`
	UsageByDate       map[string]float64 `json:"usageByDate"`
	ElectricityByDate map[string]float64 `json:"electricityByDate"`
	CostByDate        map[string]float64 `json:"costByDate"`
	// TotalElectricity is in kWh.
	TotalElectricity  float64       `json:"totalElectricity"`
	TotalCost         float64       `json:"totalCost"`
	TotalFilamentCost float64       `json:"totalFilamentCost"`
	TotalEnergyCost   float64       `json:"totalEnergyCost"`
	TotalPrintTime    float64       `json:"totalPrintTime"`
	TotalFilamentUsed float64       `json:"totalFilamentUsed"`
	AvgPrintTime      float64       `json:"avgPrintTime"`
	AvgCost           float64       `json:"avgCost"`
	AvgFilament       float64       `json:"avgFilament"`
	PrinterStats      []PrinterStat `json:"printerStats"`
	PrintsWithModels  int           `json:"printsWithModels"`
	TotalModelSize    int64         `json:"totalModelSize"`
	TopModels         []ModelCount  `json:"topModels"`
	TotalPrints       int           `json:"totalPrints"`
	Range             string        `json:"range"`
}

// Aggregate folds jobs, oldest first, into a Report. size may be nil; files it
// cannot stat are left out of the model size total.
func Aggregate(ctx context.Context, jobs []Job, size Sizer) Report {
	r := Report{
		MaterialUsage:     map[string]float64{},
		UsageByDate:       map[string]float64{},
		ElectricityByDate: map[string]float64{},
		CostByDate:        map[string]float64{},
		PrinterStats:      []PrinterStat{},
		TopModels:         []ModelCount{},
		TotalPrints:       len(jobs),
	}

	var (
		wattHours, cost, filamentCost, energyCost float64
		minutes, grams                            float64

		printerOrder []string
		printers     = map[string]*PrinterStat{}
		modelOrder   []string
		models       = map[string]int{}
	)

	for _, job := range jobs {
		switch job.Status {
		case printjob.StatusSuccess:
			r.SuccessRate.Success++
		case printjob.StatusFail:
			r.SuccessRate.Fail++
		case printjob.StatusCancelled:
			r.SuccessRate.Cancelled++
		case printjob.StatusInProgress:
			r.SuccessRate.InProgress++
		}

		if job.Material != "" {
			r.MaterialUsage[job.Material] += job.FilamentUsedG
		}

		day := job.Date.UTC().Format(dayLayout)
		wh := pricing.WattHours(job.PrinterWatts, job.DurationMinutes)
		r.UsageByDate[day] += job.FilamentUsedG
		r.ElectricityByDate[day] += wh
		r.CostByDate[day] += job.CostTotal

		wattHours += wh
		cost += job.CostTotal
		filamentCost += job.CostTotal - job.CostEnergy
		energyCost += job.CostEnergy
		minutes += job.DurationMinutes
		grams += job.FilamentUsedG

		key, name := "unknown", unknownPrinterName
		if job.PrinterID != nil {
			key = strconv.FormatInt(*job.PrinterID, 10)
			if job.PrinterName != "" {
				name = job.PrinterName
			}
		}
		stat, ok := printers[key]
		if !ok {
			stat = &PrinterStat{Name: name}
			printers[key] = stat
			printerOrder = append(printerOrder, key)
		}
		stat.Count++
		stat.Time += job.DurationMinutes

		if job.ModelFile != "" {
			r.PrintsWithModels++
			if _, seen := models[job.Name]; !seen {
				modelOrder = append(modelOrder, job.Name)
			}
			models[job.Name]++

			if size != nil {
				if n, err := size(ctx, job.ModelFile); err == nil {
					r.TotalModelSize += n
				}
			}
		}
	}

	for _, key := range printerOrder {
		r.PrinterStats = append(r.PrinterStats, *printers[key])
	}
	sort.SliceStable(r.PrinterStats, func(i, j int) bool {
		return r.PrinterStats[i].Count > r.PrinterStats[j].Count
	})

	for _, name := range modelOrder {
		r.TopModels = append(r.TopModels, ModelCount{Name: name, Count: models[name]})
	}
	sort.SliceStable(r.TopModels, func(i, j int) bool {
		return r.TopModels[i].Count > r.TopModels[j].Count
	})
	if len(r.TopModels) > TopModelsLimit {
		r.TopModels = r.TopModels[:TopModelsLimit]
	}

	r.TotalElectricity = pricing.Round2(wattHours / 1000)
	r.TotalCost = pricing.Round2(cost)
	r.TotalFilamentCost = pricing.Round2(filamentCost)
	r.TotalEnergyCost = pricing.Round2(energyCost)
	r.TotalPrintTime = minutes
	r.TotalFilamentUsed = math.Round(grams)

	// Averages cover finished prints only: cancelled and running ones are
	// left out of the divisor.
	if completed := float64(r.SuccessRate.Success + r.SuccessRate.Fail); completed > 0 {
		r.AvgPrintTime = math.Round(minutes / completed)
		r.AvgCost = pricing.Round2(cost / completed)
		r.AvgFilament = math.Round(grams / completed)
	}

	return r
}
