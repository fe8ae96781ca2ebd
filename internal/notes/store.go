package notes

import (
	"context"
	"errors"
)

var (
	ErrNoteNotFound = errors.New("note not found")
	// ErrFileMissing means the note record exists but its stored file is gone.
	ErrFileMissing = errors.New("note file missing")
	ErrValidation  = errors.New("invalid input")
)

// Store is the catalog record store. Implementations must apply each
// mutation atomically per document: UpsertRating changes ratings and
// avg_rating together, IncrementDownloads never loses concurrent updates.
type Store interface {
	Insert(ctx context.Context, n *Note) error
	FindByID(ctx context.Context, id string) (*Note, error)
	// List returns one page of matching notes plus the total match count.
	List(ctx context.Context, q ListQuery) ([]*Note, int64, error)
	// UpsertRating replaces the rater's existing entry in place or appends a
	// new one, recomputes the average, and returns the updated note.
	UpsertRating(ctx context.Context, id string, r Rating) (*Note, error)
	// IncrementDownloads bumps the download counter by one and returns the
	// updated note.
	IncrementDownloads(ctx context.Context, id string) (*Note, error)
	Delete(ctx context.Context, id string) error
}
