package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Rajchodisetti/weekly-portfolio/internal/config"
	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
	"github.com/Rajchodisetti/weekly-portfolio/internal/portfolio"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot file not found")
	ErrArchiveExists    = errors.New("archive already exists")
)

// Store owns the canonical master document plus its archive and legacy copies.
// It assumes a single writer; callers serialize runs.
type Store struct {
	Path       string
	ArchiveDir string
	LegacyDir  string // empty disables legacy copies

	rename func(oldpath, newpath string) error
}

// Option configures a Store.
type Option func(*Store)

// WithRename replaces the final rename of an atomic write, letting callers
// simulate a failing filesystem.
func WithRename(fn func(oldpath, newpath string) error) Option {
	return func(s *Store) { s.rename = fn }
}

// New creates a store from the state section of the config.
func New(cfg config.State, opts ...Option) *Store {
	s := &Store{
		Path:       cfg.Path,
		ArchiveDir: cfg.ArchiveDir,
		LegacyDir:  cfg.LegacyDir,
		rename:     os.Rename,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Exists reports whether the canonical document is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Load reads, parses and validates the canonical document. A missing file is
// ErrSnapshotNotFound; there is no empty portfolio state.
func (s *Store) Load() (*portfolio.Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, s.Path)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap portfolio.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", s.Path, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save replaces the canonical document atomically: the full document is written
// to a temp file in the same directory, synced, then renamed over the target.
// On failure the temp file is removed and the previous document is untouched.
func (s *Store) Save(snap *portfolio.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(s.Path, data); err != nil {
		return err
	}
	observ.Log("snapshot_saved", map[string]any{
		"path":         s.Path,
		"current_date": snap.Meta.CurrentDate,
		"bytes":        len(data),
	})
	return nil
}

func (s *Store) writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp snapshot: %w", err)
	}

	rename := s.rename
	if rename == nil {
		rename = os.Rename
	}
	if err = rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// ArchiveName is master-YYYYMMDD.json for an ISO date.
func ArchiveName(date string) (string, error) {
	t, err := time.Parse(portfolio.DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("archive date %q: %w", date, err)
	}
	return "master-" + t.Format("20060102") + ".json", nil
}

// Archive writes a date-stamped copy that is never overwritten.
func (s *Store) Archive(snap *portfolio.Snapshot, date string) (string, error) {
	if s.ArchiveDir == "" {
		return "", errors.New("archive dir not configured")
	}
	name, err := ArchiveName(date)
	if err != nil {
		return "", err
	}
	data, err := encode(snap)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.ArchiveDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}

	path := filepath.Join(s.ArchiveDir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrArchiveExists, path)
		}
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	return path, nil
}

// LegacySnapshot writes <LegacyDir>/<periodID>/master.json for older consumers.
// It replaces an existing copy for the same period atomically.
func (s *Store) LegacySnapshot(snap *portfolio.Snapshot, periodID string) (string, error) {
	if s.LegacyDir == "" {
		return "", errors.New("legacy dir not configured")
	}
	if periodID == "" || strings.ContainsAny(periodID, `/\`) || periodID == "." || periodID == ".." {
		return "", fmt.Errorf("invalid period id %q", periodID)
	}
	data, err := encode(snap)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.LegacyDir, periodID, "master.json")
	if err := s.writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func encode(snap *portfolio.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, errors.New("nil snapshot")
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}
