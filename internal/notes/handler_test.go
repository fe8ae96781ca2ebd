package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sharenotes/internal/auth"
	"sharenotes/internal/files"
)

type testEnv struct {
	mux       *http.ServeMux
	store     *JSONStore
	uploadDir string
	token     string
	userID    string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	tmp := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewJSONStore(tmp)
	require.NoError(t, err)

	uploadDir := filepath.Join(tmp, "uploads")
	fileStore, err := files.NewStore(uploadDir, 1*1024*1024)
	require.NoError(t, err)

	svc := NewService(store, fileStore, logger)
	handler := NewHandler(svc, fileStore, logger)

	authSvc := auth.NewService(auth.NewMemoryUserStore(), []byte("test-secret"), time.Hour)
	session, err := authSvc.Register(context.Background(), auth.RegisterInput{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/notes/upload", auth.Require(authSvc, handler.UploadNote))
	mux.HandleFunc("GET /api/notes", handler.ListNotes)
	mux.HandleFunc("GET /api/notes/{id}", handler.GetNote)
	mux.HandleFunc("GET /api/notes/{id}/download", handler.DownloadNote)
	mux.HandleFunc("POST /api/notes/{id}/rate", auth.Require(authSvc, handler.RateNote))
	mux.HandleFunc("DELETE /api/notes/{id}", auth.Require(authSvc, handler.DeleteNote))

	return &testEnv{
		mux:       mux,
		store:     store,
		uploadDir: uploadDir,
		token:     session.Token,
		userID:    session.User.ID,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, filename, subject string, fields map[string]string) Note {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("pdf", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test content"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("subject", subject))
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/notes/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := e.do(t, req, true)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var note Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	return note
}

func TestUploadAndGetNote(t *testing.T) {
	env := setupTestServer(t)

	note := env.upload(t, "my notes.pdf", "Physics 101", map[string]string{
		"faculty": "Dr. X",
		"isPaid":  "true",
		"price":   "20",
	})
	require.NotEmpty(t, note.ID)
	require.True(t, strings.HasPrefix(note.FilePath, "/uploads/"))
	require.Equal(t, env.userID, note.UploaderID)
	require.True(t, note.IsPaid)
	require.Equal(t, 20.0, note.Price)
	require.Zero(t, note.AvgRating)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notes/"+note.ID, nil), false)
	require.Equal(t, http.StatusOK, rec.Code)

	var got Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Physics 101", got.Subject)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	env := setupTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("pdf", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("subject", "Physics"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/notes/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := env.do(t, req, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRequiresAuth(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/notes/upload", nil)
	rec := env.do(t, req, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadWithoutSubjectLeavesNoFile(t *testing.T) {
	env := setupTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("pdf", "notes.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/notes/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := env.do(t, req, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	require.Empty(t, entries, "rejected upload must not leave a stored file")
}

func TestRateNote(t *testing.T) {
	env := setupTestServer(t)
	note := env.upload(t, "a.pdf", "Algebra", nil)

	body := strings.NewReader(`{"rating": 4, "review": "solid"}`)
	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/notes/"+note.ID+"/rate", body), true)
	require.Equal(t, http.StatusOK, rec.Code)

	var rated Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rated))
	require.Equal(t, 4.0, rated.AvgRating)
	require.Len(t, rated.Ratings, 1)
	require.Equal(t, env.userID, rated.Ratings[0].RaterID)

	// Same caller rating again replaces, not appends.
	body = strings.NewReader(`{"rating": 5}`)
	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/notes/"+note.ID+"/rate", body), true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rated))
	require.Len(t, rated.Ratings, 1)
	require.Equal(t, 5.0, rated.AvgRating)

	body = strings.NewReader(`{"rating": 9}`)
	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/notes/"+note.ID+"/rate", body), true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadNote(t *testing.T) {
	env := setupTestServer(t)
	note := env.upload(t, "phys.pdf", "Physics 101", nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notes/"+note.ID+"/download", nil), false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "Physics_101.pdf")
	require.Equal(t, "%PDF-1.4 test content", rec.Body.String())

	got, err := env.store.FindByID(context.Background(), note.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Downloads)
}

func TestDownloadMissingFile(t *testing.T) {
	env := setupTestServer(t)
	note := env.upload(t, "a.pdf", "Chemistry", nil)

	// Remove the stored file out from under the catalog.
	require.NoError(t, os.Remove(filepath.Join(env.uploadDir, path.Base(note.FilePath))))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notes/"+note.ID+"/download", nil), false)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "file not found")

	// The note itself is still there.
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/notes/"+note.ID, nil), false)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.store.FindByID(context.Background(), note.ID)
	require.NoError(t, err)
	require.Zero(t, got.Downloads, "failed download must not count")
}

func TestDeleteNote(t *testing.T) {
	env := setupTestServer(t)
	note := env.upload(t, "a.pdf", "History", nil)

	// File removal failing must not block metadata deletion.
	require.NoError(t, os.Remove(filepath.Join(env.uploadDir, path.Base(note.FilePath))))

	rec := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/notes/"+note.ID, nil), true)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/notes/"+note.ID, nil), false)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/notes", nil), false)
	require.Equal(t, http.StatusOK, rec.Code)

	var result ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Zero(t, result.Total)
}

func TestListNotesDefensiveParams(t *testing.T) {
	env := setupTestServer(t)
	env.upload(t, "a.pdf", "Physics", nil)
	env.upload(t, "b.pdf", "Algebra", nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notes?page=abc&limit=-1", nil), false)
	require.Equal(t, http.StatusOK, rec.Code)

	var result ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.EqualValues(t, 2, result.Total)
	require.Len(t, result.Items, 2)

	// A page value near the int limit must produce an empty page, not a
	// panic from overflowed skip arithmetic.
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/notes?page=4611686018427387904", nil), false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.EqualValues(t, 2, result.Total)
	require.Empty(t, result.Items)
}
