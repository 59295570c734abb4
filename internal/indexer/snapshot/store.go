package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

// Store persists named artifacts. Get returns ErrArtifactNotFound for
// names that were never written.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// BatchStore is implemented by stores that can write several artifacts
// atomically. Save prefers it when available.
type BatchStore interface {
	PutAll(ctx context.Context, artifacts map[string][]byte) error
}

const fileExt = ".bm25"

// DirStore keeps one file per artifact in a directory.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

func (d *DirStore) Dir() string {
	return d.dir
}

// Put atomically replaces the artifact file: it writes a .tmp file, syncs
// it and renames it into place.
func (d *DirStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	finalPath := d.path(name)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp artifact file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing artifact %q: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing artifact %q: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing artifact %q: %w", name, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming artifact %q: %w", name, err)
	}
	return nil
}

func (d *DirStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, apperrors.ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("reading artifact %q: %w", name, err)
	}
	return data, nil
}

func (d *DirStore) path(name string) string {
	return filepath.Join(d.dir, name+fileExt)
}

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[name] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) PutAll(_ context.Context, artifacts map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, data := range artifacts {
		m.artifacts[name] = append([]byte(nil), data...)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, apperrors.ErrArtifactNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes an artifact.
func (m *MemoryStore) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.artifacts, name)
}
