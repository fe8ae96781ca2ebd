package notes

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *JSONStore {
	t.Helper()
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func insertNote(t *testing.T, store *JSONStore, subject, faculty string, createdAt time.Time) *Note {
	t.Helper()
	note := &Note{
		Subject:   subject,
		Faculty:   faculty,
		FilePath:  "/uploads/test.pdf",
		CreatedAt: createdAt,
	}
	require.NoError(t, store.Insert(context.Background(), note))
	return note
}

func TestUpsertRatingRecomputesAverage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := insertNote(t, store, "Physics 101", "Dr. X", time.Now())

	updated, err := store.UpsertRating(ctx, note.ID, Rating{RaterID: "u1", Value: 4})
	require.NoError(t, err)
	require.Equal(t, 4.0, updated.AvgRating)

	updated, err = store.UpsertRating(ctx, note.ID, Rating{RaterID: "u2", Value: 5})
	require.NoError(t, err)
	require.Len(t, updated.Ratings, 2)
	require.Equal(t, 4.5, updated.AvgRating)

	updated, err = store.UpsertRating(ctx, note.ID, Rating{RaterID: "u3", Value: 3})
	require.NoError(t, err)
	require.Equal(t, 4.0, updated.AvgRating)
}

func TestUpsertRatingReplacesExistingEntry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := insertNote(t, store, "Algebra", "Dr. Y", time.Now())

	_, err := store.UpsertRating(ctx, note.ID, Rating{RaterID: "u1", Value: 3, Comment: "ok"})
	require.NoError(t, err)
	_, err = store.UpsertRating(ctx, note.ID, Rating{RaterID: "u2", Value: 2})
	require.NoError(t, err)

	// Re-rating keeps the entry in place and replaces value and comment.
	updated, err := store.UpsertRating(ctx, note.ID, Rating{RaterID: "u1", Value: 5, Comment: "better"})
	require.NoError(t, err)
	require.Len(t, updated.Ratings, 2)
	require.Equal(t, "u1", updated.Ratings[0].RaterID)
	require.Equal(t, 5, updated.Ratings[0].Value)
	require.Equal(t, "better", updated.Ratings[0].Comment)
	require.Equal(t, 3.5, updated.AvgRating)
}

func TestUpsertRatingUnknownNote(t *testing.T) {
	store := newTestStore(t)
	_, err := store.UpsertRating(context.Background(), "missing", Rating{RaterID: "u1", Value: 3})
	require.ErrorIs(t, err, ErrNoteNotFound)
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		insertNote(t, store, "Chemistry", "Dr. Z", time.Now())
	}

	items, total, err := store.List(ctx, ListQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.EqualValues(t, 5, total)

	items, total, err = store.List(ctx, ListQuery{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.EqualValues(t, 5, total)

	items, _, err = store.List(ctx, ListQuery{Page: 4, Limit: 2})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestListExtremePageDoesNotPanic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertNote(t, store, "Physics", "", time.Now())

	// A page large enough to overflow (page-1)*limit must yield an empty
	// page, not a slice-bounds panic.
	items, total, err := store.List(ctx, ListQuery{Page: 4611686018427387904, Limit: 100})
	require.NoError(t, err)
	require.Empty(t, items)
	require.EqualValues(t, 1, total)
}

func TestListSortOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := insertNote(t, store, "A", "", base)
	b := insertNote(t, store, "B", "", base.Add(time.Hour))
	c := insertNote(t, store, "C", "", base.Add(2*time.Hour))

	// A and B tie at 4.5; C trails at 3.0.
	for _, r := range []struct {
		id    string
		rater string
		value int
	}{
		{a.ID, "u1", 4}, {a.ID, "u2", 5},
		{b.ID, "u1", 4}, {b.ID, "u2", 5},
		{c.ID, "u1", 3},
	} {
		_, err := store.UpsertRating(ctx, r.id, Rating{RaterID: r.rater, Value: r.value})
		require.NoError(t, err)
	}

	items, _, err := store.List(ctx, ListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, b.ID, items[0].ID, "newer note wins the rating tie")
	require.Equal(t, a.ID, items[1].ID)
	require.Equal(t, c.ID, items[2].ID)
}

func TestListFilterComposition(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := insertNote(t, store, "Physics 101", "Dr. X", time.Now())
	insertNote(t, store, "History", "Prof. Smith", time.Now())

	items, _, err := store.List(ctx, ListQuery{Subject: "physics", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, note.ID, items[0].ID)

	// Free-text query matches subject or faculty.
	items, _, err = store.List(ctx, ListQuery{Query: "dr", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, note.ID, items[0].ID)

	items, _, err = store.List(ctx, ListQuery{Faculty: "smith", Subject: "physics", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestIncrementDownloadsConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := insertNote(t, store, "Biology", "", time.Now())

	const n = 10
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.IncrementDownloads(ctx, note.ID)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	got, err := store.FindByID(ctx, note.ID)
	require.NoError(t, err)
	require.EqualValues(t, n, got.Downloads)
}

func TestDeleteRemovesNote(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := insertNote(t, store, "Geometry", "", time.Now())

	require.NoError(t, store.Delete(ctx, note.ID))

	_, err := store.FindByID(ctx, note.ID)
	require.ErrorIs(t, err, ErrNoteNotFound)

	_, total, err := store.List(ctx, ListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Zero(t, total)

	require.ErrorIs(t, store.Delete(ctx, note.ID), ErrNoteNotFound)
}

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	note := insertNote(t, store, "Physics", "", time.Now())

	// Make the next save fail by putting a directory where the file goes.
	notesPath := filepath.Join(dir, "notes.json")
	require.NoError(t, os.Remove(notesPath))
	require.NoError(t, os.Mkdir(notesPath, 0o755))

	_, err = store.UpsertRating(ctx, note.ID, Rating{RaterID: "u1", Value: 5})
	require.Error(t, err)

	_, err = store.IncrementDownloads(ctx, note.ID)
	require.Error(t, err)

	require.Error(t, store.Delete(ctx, note.ID))

	// None of the failed writes may stick in memory.
	got, err := store.FindByID(ctx, note.ID)
	require.NoError(t, err)
	require.Empty(t, got.Ratings)
	require.Zero(t, got.AvgRating)
	require.Zero(t, got.Downloads)

	// Once the disk recovers the same mutations go through.
	require.NoError(t, os.Remove(notesPath))
	updated, err := store.UpsertRating(ctx, note.ID, Rating{RaterID: "u1", Value: 5})
	require.NoError(t, err)
	require.Equal(t, 5.0, updated.AvgRating)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	note := &Note{Subject: "Statistics", FilePath: "/uploads/s.pdf"}
	require.NoError(t, store.Insert(ctx, note))
	_, err = store.UpsertRating(ctx, note.ID, Rating{RaterID: "u1", Value: 5})
	require.NoError(t, err)

	reopened, err := NewJSONStore(dir)
	require.NoError(t, err)
	got, err := reopened.FindByID(ctx, note.ID)
	require.NoError(t, err)
	require.Equal(t, "Statistics", got.Subject)
	require.Len(t, got.Ratings, 1)
	require.Equal(t, 5.0, got.AvgRating)
}
