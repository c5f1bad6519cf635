package main

import (
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/filaprint/internal/printer"
	"github.com/Simplici0/filaprint/internal/printjob"
	"github.com/Simplici0/filaprint/internal/spool"
	"github.com/Simplici0/filaprint/internal/storage"
)

// Accepted date layouts, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}

func parseID(raw, field string) (int64, error) {
	if raw == "" {
		return 0, missing(field)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(field)
	}
	return id, nil
}

func pathID(r *http.Request) (int64, error) {
	return parseID(chi.URLParam(r, "id"), "id")
}

func parseNonNegativeFloat(raw, field string) (float64, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, invalid(field)
	}
	if value < 0 {
		return 0, invalid(field)
	}
	return value, nil
}

// optionalFloat returns nil for blank input.
func optionalFloat(raw, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := parseNonNegativeFloat(raw, field)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// floatOrZero treats blank input as 0.
func floatOrZero(raw, field string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return parseNonNegativeFloat(raw, field)
}

func requiredFloat(raw, field string) (float64, error) {
	if raw == "" {
		return 0, missing(field)
	}
	return parseNonNegativeFloat(raw, field)
}

func optionalID(raw, field string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(raw, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalDate(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, invalid(field)
}

// modelPath accepts only files the caller uploaded.
func modelPath(raw string, userID int64) (string, error) {
	if raw == "" {
		return "", nil
	}
	if !ownsUpload(raw, userID) {
		return "", invalid("model_file")
	}
	return raw, nil
}

func ownsUpload(filePath string, userID int64) bool {
	prefix := storage.Root + modelsDir + strconv.FormatInt(userID, 10) + "_"
	return strings.HasPrefix(filePath, prefix) && path.Clean(filePath) == filePath
}

func parseCreatePrint(r *http.Request, userID int64) (printjob.CreateCommand, error) {
	if err := r.ParseForm(); err != nil {
		return printjob.CreateCommand{}, invalid("form")
	}

	cmd := printjob.CreateCommand{
		UserID: userID,
		Name:   formValue(r, "name"),
		Notes:  formValue(r, "notes"),
	}

	var err error
	if cmd.SpoolID, err = parseID(formValue(r, "spool_id"), "spool_id"); err != nil {
		return printjob.CreateCommand{}, err
	}
	if cmd.PrinterID, err = parseID(formValue(r, "printer_id"), "printer_id"); err != nil {
		return printjob.CreateCommand{}, err
	}
	if cmd.DurationMinutes, err = floatOrZero(formValue(r, "duration_minutes"), "duration_minutes"); err != nil {
		return printjob.CreateCommand{}, err
	}
	if cmd.FilamentUsedG, err = requiredFloat(formValue(r, "filament_used_g"), "filament_used_g"); err != nil {
		return printjob.CreateCommand{}, err
	}
	if cmd.Status, err = printjob.ParseStatus(formValue(r, "status")); err != nil {
		return printjob.CreateCommand{}, invalid("status")
	}
	if cmd.ManualCost, err = optionalFloat(formValue(r, "manual_cost"), "manual_cost"); err != nil {
		return printjob.CreateCommand{}, err
	}
	if cmd.ElapsedMinutes, err = floatOrZero(formValue(r, "elapsed_minutes"), "elapsed_minutes"); err != nil {
		return printjob.CreateCommand{}, err
	}
	if cmd.ModelFile, err = modelPath(formValue(r, "model_file"), userID); err != nil {
		return printjob.CreateCommand{}, err
	}
	if cmd.Date, err = optionalDate(formValue(r, "date"), "date"); err != nil {
		return printjob.CreateCommand{}, err
	}
	return cmd, nil
}

func parseEditPrint(r *http.Request, userID, id int64) (printjob.EditCommand, error) {
	if err := r.ParseForm(); err != nil {
		return printjob.EditCommand{}, invalid("form")
	}

	cmd := printjob.EditCommand{
		UserID:      userID,
		ID:          id,
		Name:        formValue(r, "name"),
		RemoveModel: formValue(r, "remove_model") == "true",
	}
	if cmd.Name == "" {
		return printjob.EditCommand{}, missing("name")
	}
	if _, ok := r.PostForm["notes"]; ok {
		notes := formValue(r, "notes")
		cmd.Notes = &notes
	}

	var err error
	if cmd.SpoolID, err = optionalID(formValue(r, "spool_id"), "spool_id"); err != nil {
		return printjob.EditCommand{}, err
	}
	if cmd.PrinterID, err = optionalID(formValue(r, "printer_id"), "printer_id"); err != nil {
		return printjob.EditCommand{}, err
	}
	if cmd.DurationMinutes, err = optionalFloat(formValue(r, "duration_minutes"), "duration_minutes"); err != nil {
		return printjob.EditCommand{}, err
	}
	if cmd.FilamentUsedG, err = optionalFloat(formValue(r, "filament_used_g"), "filament_used_g"); err != nil {
		return printjob.EditCommand{}, err
	}
	if cmd.Status, err = printjob.ParseStatus(formValue(r, "status")); err != nil {
		return printjob.EditCommand{}, invalid("status")
	}
	if cmd.ManualCost, err = optionalFloat(formValue(r, "manual_cost"), "manual_cost"); err != nil {
		return printjob.EditCommand{}, err
	}
	if cmd.ElapsedMinutes, err = optionalFloat(formValue(r, "elapsed_minutes"), "elapsed_minutes"); err != nil {
		return printjob.EditCommand{}, err
	}
	if cmd.ModelFile, err = modelPath(formValue(r, "model_file"), userID); err != nil {
		return printjob.EditCommand{}, err
	}
	if cmd.Date, err = optionalDate(formValue(r, "date"), "date"); err != nil {
		return printjob.EditCommand{}, err
	}
	return cmd, nil
}

// parseSpoolForm reads a spool form. On edit a blank remaining weight keeps
// the stored value; on create it defaults to the initial weight.
func parseSpoolForm(r *http.Request) (spool.Input, error) {
	if err := r.ParseForm(); err != nil {
		return spool.Input{}, invalid("form")
	}
	return spoolInput(spoolFields{
		Brand:            formValue(r, "brand"),
		Material:         formValue(r, "material"),
		ColorHex:         formValue(r, "color_hex"),
		WeightInitialG:   formValue(r, "weight_initial_g"),
		WeightRemainingG: formValue(r, "weight_remaining_g"),
		Price:            formValue(r, "price"),
		PurchasedAt:      formValue(r, "purchased_at"),
	})
}

// spoolFields is the raw spool input shared by the form and JSON endpoints.
type spoolFields struct {
	Brand            string
	Material         string
	ColorHex         string
	WeightInitialG   string
	WeightRemainingG string
	Price            string
	PurchasedAt      string
}

func spoolInput(f spoolFields) (spool.Input, error) {
	in := spool.Input{
		Brand:    strings.TrimSpace(f.Brand),
		Material: spool.Material(strings.TrimSpace(f.Material)),
		ColorHex: strings.TrimSpace(f.ColorHex),
	}
	if in.Brand == "" {
		return spool.Input{}, missing("brand")
	}
	if in.Material == "" {
		return spool.Input{}, missing("material")
	}
	if !in.Material.IsValid() {
		return spool.Input{}, invalid("material")
	}

	var err error
	if in.WeightInitialG, err = requiredFloat(strings.TrimSpace(f.WeightInitialG), "weight_initial_g"); err != nil {
		return spool.Input{}, err
	}
	if in.WeightInitialG == 0 {
		return spool.Input{}, invalid("weight_initial_g")
	}
	if in.WeightRemainingG, err = optionalFloat(strings.TrimSpace(f.WeightRemainingG), "weight_remaining_g"); err != nil {
		return spool.Input{}, err
	}
	if in.Price, err = floatOrZero(strings.TrimSpace(f.Price), "price"); err != nil {
		return spool.Input{}, err
	}
	if in.PurchasedAt, err = optionalDate(strings.TrimSpace(f.PurchasedAt), "purchased_at"); err != nil {
		return spool.Input{}, err
	}
	return in, nil
}

func parsePrinterForm(r *http.Request) (printer.Input, error) {
	if err := r.ParseForm(); err != nil {
		return printer.Input{}, invalid("form")
	}

	in := printer.Input{
		Name:     formValue(r, "name"),
		Model:    formValue(r, "model"),
		ImageURL: formValue(r, "image_url"),
	}
	if in.Name == "" {
		return printer.Input{}, missing("name")
	}

	var err error
	if in.PowerConsumptionWatts, err = floatOrZero(formValue(r, "power_consumption_watts"), "power_consumption_watts"); err != nil {
		return printer.Input{}, err
	}
	if in.NozzleDiameterMM, err = floatOrZero(formValue(r, "nozzle_diameter_mm"), "nozzle_diameter_mm"); err != nil {
		return printer.Input{}, err
	}
	if in.BedSizeXMM, err = optionalFloat(formValue(r, "bed_size_x_mm"), "bed_size_x_mm"); err != nil {
		return printer.Input{}, err
	}
	if in.BedSizeYMM, err = optionalFloat(formValue(r, "bed_size_y_mm"), "bed_size_y_mm"); err != nil {
		return printer.Input{}, err
	}
	if in.BedSizeZMM, err = optionalFloat(formValue(r, "bed_size_z_mm"), "bed_size_z_mm"); err != nil {
		return printer.Input{}, err
	}
	return in, nil
}
