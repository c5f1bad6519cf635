package main

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/analytics"
	"github.com/Simplici0/filaprint/internal/dashboard"
	"github.com/Simplici0/filaprint/internal/printjob"
	"github.com/Simplici0/filaprint/internal/storage"
)

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	summary, err := dashboard.Load(r.Context(), s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"user":    map[string]any{"id": current.ID, "username": current.Username, "role": current.Role},
		"summary": summary,
	})
}

// libraryEntry is a print with a model file and what storage knows about it.
type libraryEntry struct {
	printjob.Listed
	FileExists bool  `json:"file_exists"`
	FileSize   int64 `json:"file_size"`
}

func (s *server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	prints, err := printjob.ListWithModels(ctx, s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entries := make([]libraryEntry, 0, len(prints))
	for _, p := range prints {
		entry := libraryEntry{Listed: p}
		size, err := s.files.Size(ctx, *p.ModelFile)
		switch {
		case err == nil:
			entry.FileExists = true
			entry.FileSize = size
		case !errors.Is(err, storage.ErrNotExist):
			s.log.Warn("stat model file", zap.String("path", *p.ModelFile), zap.Error(err))
		}
		entries = append(entries, entry)
	}
	writeSuccess(w, http.StatusOK, map[string]any{"prints": entries})
}

func (s *server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	window, err := analytics.ParseWindow(r.URL.Query().Get("range"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.analytics.Report(r.Context(), current.ID, window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"report": report})
}
