package notes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultPage  = 1
	defaultLimit = 12
	maxLimit     = 100
	// maxPage keeps (page-1)*limit inside int range even on 32-bit
	// platforms; any page past the match count yields an empty page anyway.
	maxPage = 10_000_000
)

var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharenotes_uploads_total",
		Help: "Total number of notes created.",
	})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharenotes_downloads_total",
		Help: "Total number of download requests by outcome.",
	}, []string{"status"})

	ratingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharenotes_ratings_total",
		Help: "Total number of rating submissions applied.",
	})
)

// FileStore is the blob-storage collaborator holding uploaded PDF bytes,
// addressed by stored filename.
type FileStore interface {
	Exists(name string) bool
	Open(name string) (io.ReadSeekCloser, time.Time, error)
	Remove(name string) error
}

type Service struct {
	store Store
	files FileStore
	log   *slog.Logger
}

func NewService(store Store, files FileStore, log *slog.Logger) *Service {
	return &Service{
		store: store,
		files: files,
		log:   log.With(slog.String("component", "notes_service")),
	}
}

// Create validates and coerces the upload metadata and inserts the catalog
// record. The file bytes must already be stored; FilePath only references
// them.
func (s *Service) Create(ctx context.Context, input CreateNoteInput) (*Note, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if input.FilePath == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrValidation)
	}

	price, err := strconv.ParseFloat(input.Price, 64)
	if err != nil || price < 0 {
		price = 0
	}

	note := &Note{
		Subject:    subject,
		Year:       strings.TrimSpace(input.Year),
		Section:    strings.TrimSpace(input.Section),
		Faculty:    strings.TrimSpace(input.Faculty),
		FilePath:   input.FilePath,
		IsPaid:     isTruthy(input.IsPaid),
		Price:      price,
		UploaderID: input.UploaderID,
		Ratings:    []Rating{},
	}

	if err := s.store.Insert(ctx, note); err != nil {
		return nil, err
	}

	uploadsTotal.Inc()
	return note, nil
}

// GetByID retrieves a note by ID
func (s *Service) GetByID(ctx context.Context, id string) (*Note, error) {
	return s.store.FindByID(ctx, id)
}

// List retrieves one catalog page. Non-positive page or limit values fall
// back to the defaults rather than erroring.
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Page <= 0 {
		q.Page = defaultPage
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	items, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Note{}
	}
	return &ListResult{Items: items, Total: total}, nil
}

// Rate upserts the caller's rating on a note and returns the note with the
// recomputed average.
func (s *Service) Rate(ctx context.Context, id, raterID string, value int, comment string) (*Note, error) {
	if raterID == "" {
		return nil, fmt.Errorf("%w: rater is required", ErrValidation)
	}
	if value < 1 || value > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}

	note, err := s.store.UpsertRating(ctx, id, Rating{
		RaterID: raterID,
		Value:   value,
		Comment: comment,
	})
	if err != nil {
		return nil, err
	}

	ratingsTotal.Inc()
	return note, nil
}

// Download holds an open stream for one download request.
type Download struct {
	Note     *Note
	File     io.ReadSeekCloser
	Filename string
	ModTime  time.Time
}

// StartDownload resolves the note, verifies the stored file still exists,
// bumps the download counter and opens the stream. The counter moves before
// any bytes are sent; an interrupted transfer still counts.
func (s *Service) StartDownload(ctx context.Context, id string) (*Download, error) {
	note, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoteNotFound) {
			downloadsTotal.WithLabelValues("not_found").Inc()
		} else {
			downloadsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	stored := path.Base(note.FilePath)
	if !s.files.Exists(stored) {
		downloadsTotal.WithLabelValues("file_missing").Inc()
		return nil, fmt.Errorf("%w: %s", ErrFileMissing, note.FilePath)
	}

	note, err = s.store.IncrementDownloads(ctx, id)
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	file, modTime, err := s.files.Open(stored)
	if err != nil {
		downloadsTotal.WithLabelValues("open_error").Inc()
		return nil, fmt.Errorf("open stored file %s: %w", stored, err)
	}

	downloadsTotal.WithLabelValues("success").Inc()
	return &Download{
		Note:     note,
		File:     file,
		Filename: downloadFilename(note.Subject),
		ModTime:  modTime,
	}, nil
}

// Delete removes the catalog record, then removes the stored file
// best-effort. A file removal failure is logged and swallowed; the record
// deletion alone decides the outcome.
func (s *Service) Delete(ctx context.Context, id string) error {
	note, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	stored := path.Base(note.FilePath)
	if err := s.files.Remove(stored); err != nil {
		s.log.Warn("failed to remove stored file",
			slog.String("note_id", id),
			slog.String("file", stored),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// isTruthy coerces the form representations of a boolean the way the upload
// form sends them.
func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// downloadFilename derives the served filename from the subject, e.g.
// "Physics 101" becomes "Physics_101.pdf".
func downloadFilename(subject string) string {
	name := strings.Join(strings.Fields(subject), "_")
	if name == "" {
		name = "note"
	}
	return name + ".pdf"
}
