package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/storage"
)

const (
	modelsDir      = "models/"
	maxUploadBytes = 100 << 20
	uploadField    = "stl"
)

var (
	modelExtensions = map[string]bool{".stl": true, ".obj": true}
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
)

// modelFileName builds the stored name <userID>_<unixMillis>_<uuid8>_<name>.
func modelFileName(userID, unixMillis int64, original string) string {
	base := unsafeNameChars.ReplaceAllString(filepath.Base(original), "_")
	return fmt.Sprintf("%d_%d_%s_%s", userID, unixMillis, uuid.NewString()[:8], base)
}

// acceptedModelType reports whether sniffed content can be a mesh file.
// Binary STL has no signature, ASCII STL and OBJ are plain text.
func acceptedModelType(mtype *mimetype.MIME) bool {
	name := mtype.String()
	return mtype.Is("application/octet-stream") ||
		strings.HasPrefix(name, "text/plain") ||
		strings.HasPrefix(name, "model/")
}

func (s *server) handleModelUpload(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, r, invalid(uploadField))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if errors.Is(err, http.ErrMissingFile) {
		s.writeError(w, r, missing(uploadField))
		return
	}
	if err != nil {
		s.writeError(w, r, invalid(uploadField))
		return
	}
	defer file.Close()

	if header.Size == 0 {
		s.writeError(w, r, missing(uploadField))
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !modelExtensions[ext] {
		s.writeError(w, r, invalid(uploadField))
		return
	}
	if err := sniffModel(file); err != nil {
		s.writeError(w, r, err)
		return
	}

	name := modelFileName(current.ID, s.now().UnixMilli(), header.Filename)
	filePath := storage.Root + modelsDir + name
	if err := s.files.Write(r.Context(), filePath, file); err != nil {
		s.writeError(w, r, fmt.Errorf("store model file: %w", err))
		return
	}

	s.metrics.ModelUploaded(header.Size)
	s.log.Info("model uploaded",
		zap.Int64("user_id", current.ID),
		zap.String("path", filePath),
		zap.Int64("bytes", header.Size),
	)
	writeSuccess(w, http.StatusCreated, map[string]any{
		"path":     filePath,
		"fileName": header.Filename,
		"fileType": strings.ToUpper(strings.TrimPrefix(ext, ".")),
	})
}

// sniffModel checks the content type and rewinds the file.
func sniffModel(file multipart.File) error {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return fmt.Errorf("detect model type: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind model file: %w", err)
	}
	if !acceptedModelType(mtype) {
		return invalid(uploadField)
	}
	return nil
}

// handleModelDownload serves a model file to the user who uploaded it.
func (s *server) handleModelDownload(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	filePath := r.URL.Path
	if !ownsUpload(filePath, current.ID) {
		writeJSON(w, http.StatusNotFound, failure{Reason: reasonNotFound})
		return
	}

	body, err := s.files.Open(r.Context(), filePath)
	if errors.Is(err, storage.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
		writeJSON(w, http.StatusNotFound, failure{Reason: reasonNotFound})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(filePath)))
	if _, err := io.Copy(w, body); err != nil {
		s.log.Warn("model download interrupted", zap.String("path", filePath), zap.Error(err))
	}
}
