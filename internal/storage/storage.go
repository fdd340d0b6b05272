// Package storage persists operation outputs on disk and builds the URLs they
// are downloaded from.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

const (
	defaultBinaryBase = "image"
	defaultTextBase   = "extracted-text"
	defaultExtension  = "png"

	// FilesRoute is the URL path prefix stored files are served under
	FilesRoute = "/files/"
)

var unsafeRun = regexp.MustCompile(`[^a-z0-9]+`)

// File is a stored output.
type File struct {
	// Name is the generated file name, unique per save
	Name string `json:"name"`

	// Path is the absolute location on disk
	Path string `json:"path"`

	// Size is the number of bytes written
	Size int `json:"size"`
}

// Store persists output buffers.
type Store interface {
	Save(ctx context.Context, data []byte, originalName, ext string) (*File, error)
	SaveText(ctx context.Context, text, originalName string) (*File, error)
	Open(name string) (string, error)
}

// FileStore writes outputs into a single directory.
type FileStore struct {
	dir    string
	logger *logger.Logger
}

// Config holds configuration for the file store
type Config struct {
	Logger *logger.Logger

	// Dir is created if it does not exist
	Dir string
}

// NewFileStore creates the storage directory and returns a store over it
func NewFileStore(cfg *Config) (*FileStore, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{dir: dir, logger: log}, nil
}

// Dir returns the storage directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes data under a name derived from originalName. ext defaults to
// png when empty.
func (s *FileStore) Save(ctx context.Context, data []byte, originalName, ext string) (*File, error) {
	return s.write(ctx, data, FileName(originalName, ext, defaultBinaryBase))
}

// SaveText writes recognized text as a .txt file
func (s *FileStore) SaveText(ctx context.Context, text, originalName string) (*File, error) {
	return s.write(ctx, []byte(text), FileName(originalName, "txt", defaultTextBase))
}

func (s *FileStore) write(ctx context.Context, data []byte, name string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(s.dir, name)
	if err := os.WriteFile(full, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}

	s.logger.WithFields("name", name, "size", len(data)).Debug("Stored output")
	return &File{Name: name, Path: full, Size: len(data)}, nil
}

// Open returns the path of a stored file. Names that would escape the
// storage directory are rejected.
func (s *FileStore) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", os.ErrNotExist
	}
	full := filepath.Join(s.dir, name)
	if _, err := os.Stat(full); err != nil {
		return "", err
	}
	return full, nil
}

// URL builds the public download URL of a stored file under base, for
// example "https://host" + "/files/" + name.
func (s *FileStore) URL(base, name string) string {
	return URL(base, name)
}

// URL joins base and the files route with name.
func URL(base, name string) string {
	escaped := url.PathEscape(name)
	base = strings.TrimRight(base, "/")
	if base == "" {
		return path.Join(FilesRoute, escaped)
	}
	return base + FilesRoute + escaped
}

// FileName builds "<sanitized base>-<uuid>.<ext>". The base is the original
// name up to its last dot; fallback is used when the name has no extension
// or nothing survives sanitization.
func FileName(originalName, ext, fallback string) string {
	var base string
	if dot := filepath.Ext(originalName); dot != "" {
		base = Sanitize(strings.TrimSuffix(originalName, dot))
	}
	if base == "" {
		base = fallback
	}

	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = defaultExtension
	}

	return fmt.Sprintf("%s-%s.%s", base, uuid.New().String(), ext)
}

// Sanitize lowercases s, replaces every run of characters outside [a-z0-9]
// with a single dash and trims leading and trailing dashes.
func Sanitize(s string) string {
	s = unsafeRun.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}
