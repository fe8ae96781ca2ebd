package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"sharenotes/internal/auth"
	"sharenotes/internal/files"
)

// Uploader saves raw upload bytes before the catalog record is created.
type Uploader interface {
	Save(originalName string, r io.Reader) (string, error)
	Remove(name string) error
}

type Handler struct {
	svc     *Service
	uploads Uploader
	log     *slog.Logger
}

func NewHandler(svc *Service, uploads Uploader, log *slog.Logger) *Handler {
	return &Handler{svc: svc, uploads: uploads, log: log}
}

// UploadNote handles POST /api/notes/upload. The PDF is stored first; the
// catalog record only references it.
func (h *Handler) UploadNote(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("pdf")
	if err != nil {
		h.jsonError(w, "PDF file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	stored, err := h.uploads.Save(header.Filename, file)
	if errors.Is(err, files.ErrNotPDF) || errors.Is(err, files.ErrTooLarge) {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("failed to store upload", "error", err)
		h.jsonError(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	input := CreateNoteInput{
		Subject:    r.FormValue("subject"),
		Year:       r.FormValue("year"),
		Section:    r.FormValue("section"),
		Faculty:    r.FormValue("faculty"),
		FilePath:   "/uploads/" + stored,
		IsPaid:     r.FormValue("isPaid"),
		Price:      r.FormValue("price"),
		UploaderID: auth.UserID(r.Context()),
	}

	note, err := h.svc.Create(r.Context(), input)
	if err != nil {
		// The record was never created; drop the stored file again.
		if rmErr := h.uploads.Remove(stored); rmErr != nil {
			h.log.Warn("failed to remove orphaned upload", "file", stored, "error", rmErr)
		}
		if errors.Is(err, ErrValidation) {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("failed to create note", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, note, http.StatusCreated)
}

// ListNotes handles GET /api/notes
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := ListQuery{
		Query:   r.URL.Query().Get("q"),
		Subject: r.URL.Query().Get("subject"),
		Faculty: r.URL.Query().Get("faculty"),
		Page:    h.parseInt(r.URL.Query().Get("page"), defaultPage),
		Limit:   h.parseInt(r.URL.Query().Get("limit"), defaultLimit),
	}

	result, err := h.svc.List(r.Context(), q)
	if err != nil {
		h.log.Error("failed to list notes", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, result, http.StatusOK)
}

// GetNote handles GET /api/notes/{id}
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.jsonError(w, "note ID required", http.StatusBadRequest)
		return
	}

	note, err := h.svc.GetByID(r.Context(), id)
	if errors.Is(err, ErrNoteNotFound) {
		h.jsonError(w, "note not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to get note", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, note, http.StatusOK)
}

// DownloadNote handles GET /api/notes/{id}/download. A missing file on an
// existing note is reported distinctly from a missing note.
func (h *Handler) DownloadNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.jsonError(w, "note ID required", http.StatusBadRequest)
		return
	}

	dl, err := h.svc.StartDownload(r.Context(), id)
	if errors.Is(err, ErrNoteNotFound) {
		h.jsonError(w, "note not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, ErrFileMissing) {
		h.jsonError(w, "file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to start download", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer dl.File.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	http.ServeContent(w, r, dl.Filename, dl.ModTime, dl.File)
}

// RateNote handles POST /api/notes/{id}/rate
func (h *Handler) RateNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.jsonError(w, "note ID required", http.StatusBadRequest)
		return
	}

	var body struct {
		Rating int    `json:"rating"`
		Review string `json:"review"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	note, err := h.svc.Rate(r.Context(), id, auth.UserID(r.Context()), body.Rating, body.Review)
	if errors.Is(err, ErrNoteNotFound) {
		h.jsonError(w, "note not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, ErrValidation) {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("failed to rate note", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, note, http.StatusOK)
}

// DeleteNote handles DELETE /api/notes/{id}
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.jsonError(w, "note ID required", http.StatusBadRequest)
		return
	}

	err := h.svc.Delete(r.Context(), id)
	if errors.Is(err, ErrNoteNotFound) {
		h.jsonError(w, "note not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to delete note", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helper methods ---

func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (h *Handler) parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
