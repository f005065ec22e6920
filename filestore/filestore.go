// Package filestore keeps uploaded inputs and generated results on local disk.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Roles of a stored file.
const (
	RoleUpload = "upload"
	RoleResult = "result"
)

// ResultsPrefix is the URL prefix results are served under.
const ResultsPrefix = "/results/"

var (
	// ErrInvalidFileType is returned for uploads whose extension is not allowed.
	ErrInvalidFileType = errors.New("FILE TYPE NOT ALLOWED")
	// ErrSizeExceeded is returned for uploads larger than the configured maximum.
	ErrSizeExceeded = errors.New("file size exceeds the maximum allowed size")
	// ErrNotFound is returned when a referenced result does not exist.
	ErrNotFound = errors.New("image not found")
)

// Recorder receives the number of bytes written per role.
type Recorder interface {
	RecordStored(role string, n int)
}

// Options configures a Store.
type Options struct {
	UploadDir         string
	ResultDir         string
	AllowedExtensions []string
	MaxFileSize       int64
	Recorder          Recorder
}

// Store writes uploads and results under collision-free names.
type Store struct {
	uploadDir string
	resultDir string
	allowed   []string
	maxSize   int64
	recorder  Recorder
	logger    *zap.Logger
}

// New creates both directories if needed and returns a Store.
func New(opts Options, logger *zap.Logger) (*Store, error) {
	for _, dir := range []string{opts.UploadDir, opts.ResultDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("filestore: failed to create %s: %w", dir, err)
		}
	}
	return &Store{
		uploadDir: opts.UploadDir,
		resultDir: opts.ResultDir,
		allowed: lo.Map(opts.AllowedExtensions, func(ext string, _ int) string {
			return strings.ToLower(strings.TrimPrefix(ext, "."))
		}),
		maxSize:  opts.MaxFileSize,
		recorder: opts.Recorder,
		logger:   logger.With(zap.String("component", "filestore")),
	}, nil
}

// UploadDir returns the directory uploads are written to.
func (s *Store) UploadDir() string { return s.uploadDir }

// ResultDir returns the directory results are written to.
func (s *Store) ResultDir() string { return s.resultDir }

// MaxFileSize returns the largest accepted upload in bytes.
func (s *Store) MaxFileSize() int64 { return s.maxSize }

// Allowed reports whether filename has a dot and an allowed extension.
func (s *Store) Allowed(filename string) bool {
	ext, ok := extension(filename)
	return ok && lo.Contains(s.allowed, ext)
}

// SaveUpload writes data under a fresh name that keeps the lowercased
// extension of filename and returns the stored path.
func (s *Store) SaveUpload(filename string, data []byte) (string, error) {
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w of %.1fMB", ErrSizeExceeded, float64(s.maxSize)/(1024*1024))
	}
	ext, _ := extension(filename)
	name := token()
	if ext != "" {
		name += "." + ext
	}
	path, err := s.write(s.uploadDir, name, data)
	if err != nil {
		return "", err
	}
	s.record(RoleUpload, len(data))
	s.logger.Debug("upload stored", zap.String("original", filename), zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// SaveResult writes data as "<prefix>_<token>.<ext>" in the result directory.
func (s *Store) SaveResult(prefix, ext string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%s.%s", prefix, token(), strings.TrimPrefix(ext, "."))
	path, err := s.write(s.resultDir, name, data)
	if err != nil {
		return "", err
	}
	s.record(RoleResult, len(data))
	s.logger.Info("result stored", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// ResultURL maps a stored result path to its public URL path.
func (s *Store) ResultURL(path string) string {
	return ResultsPrefix + filepath.Base(path)
}

// ResolveResult maps a public path ("/results/x.png", "results/x.png" or any
// path ending in a file name) back to a file in the result directory.
func (s *Store) ResolveResult(publicPath string) (string, error) {
	name := publicPath
	switch {
	case strings.HasPrefix(name, ResultsPrefix):
		name = strings.TrimPrefix(name, ResultsPrefix)
	case strings.HasPrefix(name, "results/"):
		name = strings.TrimPrefix(name, "results/")
	}
	// only the final element is trusted so nothing outside resultDir resolves
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, publicPath)
	}

	path := filepath.Join(s.resultDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

// Sweep removes regular files last modified before cutoff from both
// directories and returns how many were removed.
func (s *Store) Sweep(cutoff time.Time) (int, error) {
	removed := 0
	var errs []error
	for _, dir := range []string{s.uploadDir, s.resultDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("filestore: failed to list %s: %w", dir, err))
			continue
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("filestore: failed to remove %s: %w", path, err))
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

func (s *Store) write(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	// O_EXCL: an existing file is never overwritten
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("filestore: failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("filestore: failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("filestore: failed to close %s: %w", path, err)
	}
	return path, nil
}

func (s *Store) record(role string, n int) {
	if s.recorder != nil {
		s.recorder.RecordStored(role, n)
	}
}

// extension returns the lowercased suffix after the last dot.
func extension(filename string) (string, bool) {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return "", false
	}
	return strings.ToLower(filename[i+1:]), true
}

// token is a random 128-bit hex string.
func token() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}
