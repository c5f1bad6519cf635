package main

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/filaprint/internal/user"
)

const asciiSTL = "solid benchy\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nvertex 1 0 0\nvertex 0 1 0\nendloop\nendfacet\nendsolid benchy\n"

func uploadRequest(t *testing.T, field, fileName string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload-stl", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestModelFileName(t *testing.T) {
	name := modelFileName(7, 1700000000000, "../My Benchy (v2).stl")

	pattern := regexp.MustCompile(`^7_1700000000000_[0-9a-f]{8}_My_Benchy__v2_\.stl$`)
	if !pattern.MatchString(name) {
		t.Fatalf("unexpected file name %q", name)
	}
}

func TestUploadAndDownloadModel(t *testing.T) {
	f := newPrintsFixture(t)

	rec := f.do(uploadRequest(t, uploadField, "benchy.stl", []byte(asciiSTL)), f.cookie)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	filePath := body["path"].(string)
	assert.True(t, strings.HasPrefix(filePath, "/uploads/models/"+strconv.FormatInt(f.userID, 10)+"_"), filePath)
	assert.True(t, strings.HasSuffix(filePath, "_benchy.stl"), filePath)
	assert.Equal(t, "STL", body["fileType"])
	assert.Equal(t, "benchy.stl", body["fileName"])

	rec = f.do(httptest.NewRequest(http.MethodGet, filePath, nil), f.cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, asciiSTL, string(got))

	otherID := f.userID + 100
	rec = f.do(httptest.NewRequest(http.MethodGet, filePath, nil), f.sessionFor(t, otherID, "other", user.RoleMaker))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(postForm("/prints", f.printForm(url.Values{"model_file": {filePath}})), f.cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/library", nil), f.cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody(t, rec)["prints"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, filePath, entry["model_file"])
	assert.Equal(t, true, entry["file_exists"])
	assert.Equal(t, float64(len(asciiSTL)), entry["file_size"])
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newPrintsFixture(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

	tests := []struct {
		name     string
		field    string
		fileName string
		content  []byte
		reason   string
	}{
		{"wrong field", "file", "benchy.stl", []byte(asciiSTL), reasonMissing},
		{"empty file", uploadField, "benchy.stl", nil, reasonMissing},
		{"wrong extension", uploadField, "benchy.gcode", []byte(asciiSTL), reasonInvalid},
		{"image content", uploadField, "benchy.stl", png, reasonInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(uploadRequest(t, tt.field, tt.fileName, tt.content), f.cookie)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, tt.reason, body["reason"])
			assert.Equal(t, uploadField, body["field"])
		})
	}
}

func TestDownloadMissingModel(t *testing.T) {
	f := newPrintsFixture(t)

	target := "/uploads/models/" + strconv.FormatInt(f.userID, 10) + "_1_deadbeef_gone.stl"
	rec := f.do(httptest.NewRequest(http.MethodGet, target, nil), f.cookie)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
