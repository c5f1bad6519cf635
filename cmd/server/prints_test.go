package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/filaprint/internal/dbtest"
	"github.com/Simplici0/filaprint/internal/printjob"
	"github.com/Simplici0/filaprint/internal/user"
)

type printsFixture struct {
	testServer
	userID  int64
	spoolID int64
	printer int64
	cookie  *http.Cookie
}

func newPrintsFixture(t *testing.T) printsFixture {
	t.Helper()

	ts := newTestServer(t)
	userID := dbtest.InsertUser(t, ts.db, "maker", 0.12)
	return printsFixture{
		testServer: ts,
		userID:     userID,
		spoolID:    dbtest.InsertSpool(t, ts.db, userID, "PLA", 20, 1000, 1000),
		printer:    dbtest.InsertPrinter(t, ts.db, userID, "MK4", 200),
		cookie:     ts.sessionFor(t, userID, "maker", user.RoleMaker),
	}
}

func (f printsFixture) printForm(overrides url.Values) url.Values {
	form := url.Values{
		"name":             {"Benchy"},
		"spool_id":         {strconv.FormatInt(f.spoolID, 10)},
		"printer_id":       {strconv.FormatInt(f.printer, 10)},
		"duration_minutes": {"30"},
		"filament_used_g":  {"100"},
	}
	for k, v := range overrides {
		form[k] = v
	}
	return form
}

func TestCreatePrintDeductsFilament(t *testing.T) {
	f := newPrintsFixture(t)

	rec := f.do(postForm("/prints", f.printForm(nil)), f.cookie)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	job := body["print"].(map[string]any)
	assert.Equal(t, 2.01, job["calculated_cost_filament"])
	assert.Equal(t, 0.01, job["calculated_cost_energy"])
	assert.Equal(t, string(printjob.StatusSuccess), job["status"])
	assert.Equal(t, 900.0, dbtest.SpoolRemaining(t, f.db, f.spoolID))
}

func TestCreatePrintErrors(t *testing.T) {
	f := newPrintsFixture(t)
	otherID := dbtest.InsertUser(t, f.db, "other", 0.12)
	foreignSpool := dbtest.InsertSpool(t, f.db, otherID, "PLA", 20, 1000, 1000)
	foreignPrinter := dbtest.InsertPrinter(t, f.db, otherID, "X1C", 350)
	emptySpool := dbtest.InsertSpool(t, f.db, f.userID, "PETG", 20, 0, 0)

	tests := []struct {
		name      string
		overrides url.Values
		status    int
		reason    string
		field     string
	}{
		{"foreign spool", url.Values{"spool_id": {strconv.FormatInt(foreignSpool, 10)}}, http.StatusNotFound, reasonSpoolNotFound, ""},
		{"foreign printer", url.Values{"printer_id": {strconv.FormatInt(foreignPrinter, 10)}}, http.StatusNotFound, reasonPrinterNotFound, ""},
		{"zero weight spool", url.Values{"spool_id": {strconv.FormatInt(emptySpool, 10)}}, http.StatusUnprocessableEntity, reasonUndefinedCost, ""},
		{"missing spool", url.Values{"spool_id": {""}}, http.StatusBadRequest, reasonMissing, "spool_id"},
		{"missing filament weight", url.Values{"filament_used_g": {""}}, http.StatusBadRequest, reasonMissing, "filament_used_g"},
		{"negative usage", url.Values{"filament_used_g": {"-5"}}, http.StatusBadRequest, reasonInvalid, "filament_used_g"},
		{"text duration", url.Values{"duration_minutes": {"soon"}}, http.StatusBadRequest, reasonInvalid, "duration_minutes"},
		{"unknown status", url.Values{"status": {"Paused"}}, http.StatusBadRequest, reasonInvalid, "status"},
		{"foreign model file", url.Values{"model_file": {"/uploads/models/999_1_abcd1234_x.stl"}}, http.StatusBadRequest, reasonInvalid, "model_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(postForm("/prints", f.printForm(tt.overrides)), f.cookie)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.reason, body["reason"])
			if tt.field != "" {
				assert.Equal(t, tt.field, body["field"])
			}
		})
	}

	assert.Equal(t, 1000.0, dbtest.SpoolRemaining(t, f.db, f.spoolID))
	assert.Equal(t, 1000.0, dbtest.SpoolRemaining(t, f.db, foreignSpool))
}

func TestCreateInProgressPrintKeepsFilament(t *testing.T) {
	f := newPrintsFixture(t)

	rec := f.do(postForm("/prints", f.printForm(url.Values{
		"status":          {string(printjob.StatusInProgress)},
		"elapsed_minutes": {"15"},
	})), f.cookie)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decodeBody(t, rec)["print"].(map[string]any)
	assert.NotNil(t, job["started_at"])
	assert.Equal(t, 1000.0, dbtest.SpoolRemaining(t, f.db, f.spoolID))
}

func TestUpdatePrintHandler(t *testing.T) {
	f := newPrintsFixture(t)
	job, err := f.srv.prints.Create(context.Background(), printjob.CreateCommand{
		UserID:          f.userID,
		SpoolID:         f.spoolID,
		PrinterID:       f.printer,
		DurationMinutes: 30,
		FilamentUsedG:   100,
	})
	if err != nil {
		t.Fatalf("create print: %v", err)
	}

	req := postForm("/prints/"+strconv.FormatInt(job.ID, 10), url.Values{"name": {"Renamed"}, "manual_cost": {"5"}})
	req = withRoute(req, identity{ID: f.userID, Username: "maker", Role: user.RoleMaker}, map[string]string{"id": strconv.FormatInt(job.ID, 10)})
	rec := httptest.NewRecorder()

	f.srv.handlePrintsUpdate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated, err := printjob.Get(context.Background(), f.db, f.userID, job.ID)
	if err != nil {
		t.Fatalf("get print: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("expected name Renamed, got %q", updated.Name)
	}
	if updated.FilamentUsedG != 100 || updated.DurationMinutes != 30 {
		t.Fatalf("expected usage to be kept, got %.0f g / %.0f min", updated.FilamentUsedG, updated.DurationMinutes)
	}
	if updated.CostTotal != 5 {
		t.Fatalf("expected manual cost 5, got %.2f", updated.CostTotal)
	}
	if remaining := dbtest.SpoolRemaining(t, f.db, f.spoolID); remaining != 900 {
		t.Fatalf("expected edit to leave spool at 900 g, got %.0f", remaining)
	}
}

func TestUpdatePrintRequiresName(t *testing.T) {
	f := newPrintsFixture(t)
	rec := f.do(postForm("/prints", f.printForm(nil)), f.cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := int64(decodeBody(t, rec)["print"].(map[string]any)["id"].(float64))

	rec = f.do(postForm("/prints/"+strconv.FormatInt(id, 10), url.Values{"name": {""}, "filament_used_g": {"5"}}), f.cookie)

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, reasonMissing, body["reason"])
	assert.Equal(t, "name", body["field"])

	kept, err := printjob.Get(context.Background(), f.db, f.userID, id)
	require.NoError(t, err)
	assert.Equal(t, "Benchy", kept.Name)
	assert.Equal(t, 100.0, kept.FilamentUsedG)
}

func TestUpdatePrintHandlerInvalidID(t *testing.T) {
	f := newPrintsFixture(t)

	req := postForm("/prints/abc", url.Values{"name": {"x"}})
	req = withRoute(req, identity{ID: f.userID, Username: "maker", Role: user.RoleMaker}, map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()

	f.srv.handlePrintsUpdate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestDuplicateAndDeletePrint(t *testing.T) {
	f := newPrintsFixture(t)
	rec := f.do(postForm("/prints", f.printForm(nil)), f.cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := int64(decodeBody(t, rec)["print"].(map[string]any)["id"].(float64))
	target := "/prints/" + strconv.FormatInt(id, 10)

	rec = f.do(postForm(target+"/duplicate", nil), f.cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 800.0, dbtest.SpoolRemaining(t, f.db, f.spoolID))

	rec = f.do(postForm(target+"/delete", nil), f.cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 800.0, dbtest.SpoolRemaining(t, f.db, f.spoolID))

	rec = f.do(postForm(target+"/delete", nil), f.cookie)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, reasonNotFound, decodeBody(t, rec)["reason"])

	jobs, err := printjob.List(context.Background(), f.db, f.userID)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestPrintsAreScopedToOwner(t *testing.T) {
	f := newPrintsFixture(t)
	rec := f.do(postForm("/prints", f.printForm(nil)), f.cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decodeBody(t, rec)["print"].(map[string]any)["id"].(float64))

	otherID := dbtest.InsertUser(t, f.db, "other", 0.12)
	other := f.sessionFor(t, otherID, "other", user.RoleMaker)

	rec = f.do(postForm("/prints/"+strconv.FormatInt(id, 10)+"/delete", nil), other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/prints", nil), other)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["prints"])
}
