package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/spool"
)

func (s *server) handleSpoolsList(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	spools, err := spool.ListActive(r.Context(), s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"spools": spools})
}

func (s *server) handleSpoolsCreate(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	in, err := parseSpoolForm(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.createSpool(w, r, current.ID, in)
}

func (s *server) createSpool(w http.ResponseWriter, r *http.Request, userID int64, in spool.Input) {
	created, err := spool.Create(r.Context(), s.db, userID, in, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("spool added", zap.Int64("user_id", userID), zap.Int64("spool_id", created.ID))
	writeSuccess(w, http.StatusCreated, map[string]any{"spool": created})
}

func (s *server) handleSpoolsUpdate(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	in, err := parseSpoolForm(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := spool.Update(r.Context(), s.db, current.ID, id, in, s.now()); err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := spool.Get(r.Context(), s.db, current.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"spool": updated})
}

func (s *server) handleSpoolsDelete(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := spool.SoftDelete(r.Context(), s.db, current.ID, id, s.now()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("spool archived", zap.Int64("user_id", current.ID), zap.Int64("spool_id", id))
	writeSuccess(w, http.StatusOK, nil)
}

func (s *server) handleAPISpoolsList(w http.ResponseWriter, r *http.Request) {
	s.handleSpoolsList(w, r)
}

// spoolRequest is the JSON body of POST /api/spools.
type spoolRequest struct {
	Brand            string   `json:"brand"`
	Material         string   `json:"material"`
	ColorHex         string   `json:"color_hex"`
	WeightInitialG   *float64 `json:"weight_initial_g"`
	WeightRemainingG *float64 `json:"weight_remaining_g"`
	Price            *float64 `json:"price"`
	PurchasedAt      string   `json:"purchased_at"`
}

func (s *server) handleAPISpoolsCreate(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req spoolRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, r, invalid("body"))
		return
	}

	in, err := spoolInput(spoolFields{
		Brand:            req.Brand,
		Material:         req.Material,
		ColorHex:         req.ColorHex,
		WeightInitialG:   formatOptional(req.WeightInitialG),
		WeightRemainingG: formatOptional(req.WeightRemainingG),
		Price:            formatOptional(req.Price),
		PurchasedAt:      req.PurchasedAt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.createSpool(w, r, current.ID, in)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
