package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/generate"
	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
	"github.com/pagelens/pagelens/internal/pipeline"
	"github.com/pagelens/pagelens/internal/store"
)

type stubRaster struct{}

func (stubRaster) Render(_ context.Context, _ string, page int) ([]byte, string, error) {
	return []byte(fmt.Sprintf("img-%d", page)), "image/png", nil
}

type stubGen struct{}

func (stubGen) Generate(_ context.Context, _ []byte, _, prompt, _ string, _ generate.Config) (string, error) {
	return "Explanation for " + prompt[:8], nil
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	log := logger.NewNop()
	st, err := store.OpenGorm("sqlite", filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)

	runner := pipeline.NewRunner(st, stubRaster{}, stubGen{}, log, pipeline.RunnerOptions{
		ContextWindow: 3,
		MaxRetries:    0,
		RetryBackoff:  time.Millisecond,
	})
	defaults := generate.Config{Mode: generate.ModeMarkdown, Temperature: 0.7, MaxOutputTokens: 2000}
	svc := pipeline.NewService(st, runner, t.TempDir(), defaults, log)

	cfg := &config.Config{
		ListenAddr:     ":0",
		FrontendOrigin: "http://localhost:3000",
		LogMode:        "prod",
		MaxUploadMB:    50,
	}
	return New(svc, cfg, log), st
}

func seedDoc(t *testing.T, st store.Store, id string, totalPages int) {
	t.Helper()
	require.NoError(t, st.Upsert(context.Background(), &models.Document{
		ID:               id,
		OriginalFilename: id + ".pdf",
		TotalPages:       totalPages,
		Location:         "/tmp/" + id + ".pdf",
	}))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func waitForStatus(t *testing.T, h http.Handler, id, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := doJSON(t, h, http.MethodGet, "/api/documents/"+id+"/progress", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var p models.Progress
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
		if p.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("document %s never reached status %s", id, want)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitRejectsNonPDF(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "PDF")
}

func TestSubmitRequiresFile(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/documents", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	seedDoc(t, st, "doc1", 3)

	// Unknown document.
	w := doJSON(t, h, http.MethodGet, "/api/documents/nope/progress", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Invalid page selection.
	w = doJSON(t, h, http.MethodPost, "/api/documents/doc1/runs",
		models.StartRunRequest{Pages: []int{99}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc1/runs",
		strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Non-integer page parameter.
	w = doJSON(t, h, http.MethodGet, "/api/documents/doc1/pages/two", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Export before completion.
	w = doJSON(t, h, http.MethodGet, "/api/documents/doc1/export", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Cancel with no active run.
	w = doJSON(t, h, http.MethodDelete, "/api/documents/doc1/runs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	seedDoc(t, st, "doc2", 2)

	w := doJSON(t, h, http.MethodPost, "/api/documents/doc2/runs",
		models.StartRunRequest{Pages: []int{1, 2}})
	require.Equal(t, http.StatusAccepted, w.Code)

	waitForStatus(t, h, "doc2", models.StatusCompleted)

	w = doJSON(t, h, http.MethodGet, "/api/documents/doc2/pages/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page models.PageResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.False(t, page.Pending)
	require.NotNil(t, page.Artifact)
	assert.Equal(t, 1, page.Artifact.PageNumber)

	w = doJSON(t, h, http.MethodGet, "/api/documents/doc2/export?format=markdown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")

	w = doJSON(t, h, http.MethodGet, "/api/documents/doc2/export?format=csv", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Invalidate one page, then it reads as pending again.
	w = doJSON(t, h, http.MethodPost, "/api/documents/doc2/invalidate",
		models.InvalidateRequest{Pages: []int{2}})
	require.Equal(t, http.StatusOK, w.Code)
	var inv models.InvalidateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inv))
	assert.Equal(t, int64(1), inv.Removed)

	w = doJSON(t, h, http.MethodGet, "/api/documents/doc2/pages/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.True(t, page.Pending)
}
