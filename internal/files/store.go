package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when an upload exceeds the size limit
	ErrTooLarge = errors.New("upload exceeds maximum file size")

	// ErrInvalidName is returned for names that escape the base directory
	ErrInvalidName = errors.New("invalid file name")
)

// FileInfo describes a stored upload
type FileInfo struct {
	Name     string    `json:"name"`
	Original string    `json:"original"`
	Path     string    `json:"-"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store writes uploads below a base directory
type Store struct {
	dir     string
	maxSize int64
	logger  *slog.Logger
	newID   func() string
}

// NewStore creates the base directory if needed. maxSize <= 0 disables the limit.
func NewStore(dir string, maxSize int64, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:     abs,
		maxSize: maxSize,
		logger:  logger.With(slog.String("component", "upload_store")),
		newID:   func() string { return uuid.New().String()[:8] },
	}, nil
}

// Dir returns the absolute base directory
func (s *Store) Dir() string { return s.dir }

// Save copies r into a new file named after original. A partial file is
// removed when the copy fails or the limit is hit.
func (s *Store) Save(ctx context.Context, original string, r io.Reader) (FileInfo, error) {
	clean := SanitizeName(original)
	if clean == "" {
		return FileInfo{}, fmt.Errorf("%w: %q", ErrInvalidName, original)
	}
	name := s.newID() + "_" + clean
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return FileInfo{}, fmt.Errorf("create upload: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("write upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close upload: %w", closeErr)
	case s.maxSize > 0 && n > s.maxSize:
		err = fmt.Errorf("%w (%d bytes)", ErrTooLarge, s.maxSize)
	}
	if err != nil {
		_ = os.Remove(path)
		s.logger.WarnContext(ctx, "upload rejected",
			slog.String("original", original),
			slog.String("error", err.Error()))
		return FileInfo{}, err
	}

	s.logger.InfoContext(ctx, "upload stored",
		slog.String("name", name),
		slog.Int64("size_bytes", n))

	return FileInfo{Name: name, Original: clean, Path: path, Size: n, Modified: time.Now()}, nil
}

// Open opens a stored upload by name
func (s *Store) Open(name string) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Remove deletes a stored upload
func (s *Store) Remove(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// List returns stored uploads, newest first
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		original := e.Name()
		if i := strings.IndexByte(original, '_'); i >= 0 {
			original = original[i+1:]
		}
		out = append(out, FileInfo{
			Name:     e.Name(),
			Original: original,
			Path:     filepath.Join(s.dir, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	return out, nil
}

// Cleanup removes uploads older than maxAge and returns how many were removed
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	all, err := s.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, f := range all {
		if f.Modified.Before(cutoff) {
			if err := os.Remove(f.Path); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		s.logger.Info("old uploads removed", slog.Int("count", removed))
	}
	return removed, nil
}

func (s *Store) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// SanitizeName reduces a client supplied file name to a safe base name.
// Characters other than letters, digits, dot, dash and underscore become '_'.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > 200 {
		ext := filepath.Ext(out)
		out = out[:200-len(ext)] + ext
	}
	return out
}
