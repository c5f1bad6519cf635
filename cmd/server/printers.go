package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/printer"
)

func (s *server) handlePrintersList(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	printers, err := printer.List(r.Context(), s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"printers": printers})
}

func (s *server) handlePrintersCreate(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	in, err := parsePrinterForm(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := printer.Create(r.Context(), s.db, current.ID, in, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("printer added", zap.Int64("user_id", current.ID), zap.Int64("printer_id", created.ID))
	writeSuccess(w, http.StatusCreated, map[string]any{"printer": created})
}

func (s *server) handlePrintersUpdate(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	in, err := parsePrinterForm(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := printer.Update(r.Context(), s.db, current.ID, id, in, s.now()); err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := printer.Get(r.Context(), s.db, current.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"printer": updated})
}

func (s *server) handlePrintersDelete(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := printer.Delete(r.Context(), s.db, current.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("printer removed", zap.Int64("user_id", current.ID), zap.Int64("printer_id", id))
	writeSuccess(w, http.StatusOK, nil)
}
