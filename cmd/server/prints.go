package main

import (
	"net/http"

	"github.com/Simplici0/filaprint/internal/printer"
	"github.com/Simplici0/filaprint/internal/printjob"
	"github.com/Simplici0/filaprint/internal/spool"
)

func (s *server) handlePrintsList(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	prints, err := printjob.List(ctx, s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spools, err := spool.ListActive(ctx, s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	printers, err := printer.List(ctx, s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"prints":   prints,
		"spools":   spools,
		"printers": printers,
	})
}

func (s *server) handlePrintsCreate(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	cmd, err := parseCreatePrint(r, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.prints.Create(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"print": job})
}

func (s *server) handlePrintsUpdate(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cmd, err := parseEditPrint(r, current.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.prints.Edit(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"print": job})
}

func (s *server) handlePrintsDelete(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.prints.Delete(r.Context(), current.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *server) handlePrintsDuplicate(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.prints.Duplicate(r.Context(), current.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"print": job})
}
