package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

// FileStore keeps processed video IDs in a JSON array on disk. The whole set
// is cached in memory and rewritten atomically on every Add.
type FileStore struct {
	path string

	mu  sync.Mutex
	ids map[string]struct{}
}

var _ ports.DedupStore = (*FileStore)(nil)

// OpenFileStore loads the set from path. A missing file is an empty set.
func OpenFileStore(path string) (*FileStore, error) {
	store := &FileStore{path: path, ids: map[string]struct{}{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrStoreUnavailable, path, err)
	}
	if len(raw) == 0 {
		return store, nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrStoreUnavailable, path, err)
	}
	for _, id := range ids {
		store.ids[id] = struct{}{}
	}
	return store, nil
}

// Contains reports whether videoID was already processed.
func (s *FileStore) Contains(_ context.Context, videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[videoID]
	return ok, nil
}

// Add records videoID and persists the set before returning.
func (s *FileStore) Add(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[videoID]; ok {
		return nil
	}
	s.ids[videoID] = struct{}{}
	if err := s.persistLocked(); err != nil {
		delete(s.ids, videoID)
		return err
	}
	return nil
}

// Len returns the number of recorded IDs.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *FileStore) persistLocked() error {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode processed videos: %w", err)
	}
	if err := writeAtomic(s.path, payload); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// writeAtomic writes into a temp file in the target directory and renames it
// over path, so readers never observe a partial file.
func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".processed-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
