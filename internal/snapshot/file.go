package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/infinitecloud/infinitecloud/internal/logging"
	"github.com/infinitecloud/infinitecloud/internal/metrics"
)

// FileStore persists snapshots to a single local file. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// crash mid-write never leaves a truncated snapshot.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore, creating the parent directory if
// needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(snap *Snapshot) error {
	start := time.Now()
	data, err := encode(snap)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		metrics.RecordSnapshotPersist(time.Since(start), false)
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		metrics.RecordSnapshotPersist(time.Since(start), false)
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}

	metrics.RecordSnapshotPersist(time.Since(start), true)
	logging.Debug("snapshot saved",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)))
	return nil
}

func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read file: %w", err)
	}
	return decode(data)
}

func (s *FileStore) Close() error { return nil }
