package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JSONStore is a file-backed catalog store used in development and tests
// when no MongoDB is configured. A single mutex serializes mutations, which
// gives the same per-document atomicity the Mongo store provides.
type JSONStore struct {
	mu   sync.RWMutex
	path string
	data []*Note
}

func NewJSONStore(baseDir string) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := &JSONStore{path: filepath.Join(baseDir, "notes.json")}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = []*Note{}

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("open notes file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			return s.saveLocked()
		}
		return fmt.Errorf("decode notes file: %w", err)
	}
	return nil
}

func (s *JSONStore) saveLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notes file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write notes file: %w", err)
	}
	return nil
}

func (s *JSONStore) Insert(_ context.Context, n *Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Ratings == nil {
		n.Ratings = []Rating{}
	}

	s.data = append(s.data, cloneNote(n))
	if err := s.saveLocked(); err != nil {
		s.data = s.data[:len(s.data)-1]
		return err
	}
	return nil
}

func (s *JSONStore) FindByID(_ context.Context, id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, ErrNoteNotFound
	}
	return cloneNote(s.data[idx]), nil
}

func (s *JSONStore) List(_ context.Context, q ListQuery) ([]*Note, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Note
	for _, n := range s.data {
		if q.Subject != "" && !containsFold(n.Subject, q.Subject) {
			continue
		}
		if q.Faculty != "" && !containsFold(n.Faculty, q.Faculty) {
			continue
		}
		if q.Query != "" && !containsFold(n.Subject, q.Query) && !containsFold(n.Faculty, q.Query) {
			continue
		}
		matched = append(matched, n)
	}

	// Stable sort keeps insertion order for notes tied on both keys.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].AvgRating != matched[j].AvgRating {
			return matched[i].AvgRating > matched[j].AvgRating
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	// Guard against skip overflowing on absurd page values.
	skip := (q.Page - 1) * q.Limit
	if skip < 0 || skip >= len(matched) {
		return []*Note{}, total, nil
	}
	matched = matched[skip:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	items := make([]*Note, len(matched))
	for i, n := range matched {
		items[i] = cloneNote(n)
	}
	return items, total, nil
}

func (s *JSONStore) UpsertRating(_ context.Context, id string, r Rating) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, ErrNoteNotFound
	}

	// Mutate a copy and swap it in only once the write sticks, so a failed
	// save leaves the in-memory state matching the file.
	note := cloneNote(s.data[idx])

	replaced := false
	for i := range note.Ratings {
		if note.Ratings[i].RaterID == r.RaterID {
			note.Ratings[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		note.Ratings = append(note.Ratings, r)
	}

	var sum float64
	for _, rating := range note.Ratings {
		sum += float64(rating.Value)
	}
	note.AvgRating = sum / float64(len(note.Ratings))

	if err := s.swapAndSaveLocked(idx, note); err != nil {
		return nil, err
	}
	return cloneNote(note), nil
}

func (s *JSONStore) IncrementDownloads(_ context.Context, id string) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, ErrNoteNotFound
	}

	note := cloneNote(s.data[idx])
	note.Downloads++

	if err := s.swapAndSaveLocked(idx, note); err != nil {
		return nil, err
	}
	return cloneNote(note), nil
}

func (s *JSONStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrNoteNotFound
	}

	removed := s.data[idx]
	s.data = append(s.data[:idx], s.data[idx+1:]...)
	if err := s.saveLocked(); err != nil {
		s.data = append(s.data[:idx], append([]*Note{removed}, s.data[idx:]...)...)
		return err
	}
	return nil
}

// swapAndSaveLocked installs the updated note and persists, restoring the
// previous version when the write fails.
func (s *JSONStore) swapAndSaveLocked(idx int, note *Note) error {
	prev := s.data[idx]
	s.data[idx] = note
	if err := s.saveLocked(); err != nil {
		s.data[idx] = prev
		return err
	}
	return nil
}

func (s *JSONStore) indexLocked(id string) int {
	for i, n := range s.data {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// cloneNote copies a note so callers never alias store-internal state.
func cloneNote(n *Note) *Note {
	c := *n
	c.Ratings = make([]Rating, len(n.Ratings))
	copy(c.Ratings, n.Ratings)
	return &c
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
