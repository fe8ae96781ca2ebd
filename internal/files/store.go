// Package files stores uploaded PDF bytes on the local filesystem, keyed by
// a generated filename. The catalog only ever references these names.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotPDF   = errors.New("only PDF files are allowed")
	ErrTooLarge = errors.New("file exceeds maximum size")
)

type Store struct {
	dir      string
	maxBytes int64
}

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the directory uploads are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the upload to disk under a timestamped, sanitized name derived
// from the original filename and returns the stored name. Rejects anything
// without a .pdf extension.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	if strings.ToLower(filepath.Ext(originalName)) != ".pdf" {
		return "", ErrNotPDF
	}

	name := storedName(originalName)
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		// Same name within the same millisecond; fall back to a random one.
		name = uuid.NewString() + ".pdf"
		path = filepath.Join(s.dir, name)
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if err := s.copyWithLimit(out, r); err != nil {
		out.Close()
		os.Remove(path)
		return "", err
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return name, nil
}

// Exists reports whether a stored file is still present.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(filepath.Join(s.dir, filepath.Base(name)))
	return err == nil && !info.IsDir()
}

// Open opens a stored file for reading and returns its modification time.
func (s *Store) Open(name string) (io.ReadSeekCloser, time.Time, error) {
	file, err := os.Open(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("open stored file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, time.Time{}, fmt.Errorf("stat stored file: %w", err)
	}
	return file, info.ModTime(), nil
}

// Remove deletes a stored file.
func (s *Store) Remove(name string) error {
	if err := os.Remove(filepath.Join(s.dir, filepath.Base(name))); err != nil {
		return fmt.Errorf("remove stored file: %w", err)
	}
	return nil
}

func (s *Store) copyWithLimit(out io.Writer, r io.Reader) error {
	if s.maxBytes <= 0 {
		if _, err := io.Copy(out, r); err != nil {
			return fmt.Errorf("write upload: %w", err)
		}
		return nil
	}

	written, err := io.Copy(out, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	if written > s.maxBytes {
		return ErrTooLarge
	}
	return nil
}

// storedName mirrors the upload naming scheme: unix millis, a dash, the
// original name with whitespace collapsed to underscores.
func storedName(originalName string) string {
	base := filepath.Base(originalName)
	base = strings.Join(strings.Fields(base), "_")
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), base)
}
