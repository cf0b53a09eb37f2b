package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ctxrank/config"
	"ctxrank/internal/domain"
)

const fileExt = ".emb"

// FileStore keeps one binary file per cache key under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := config.EnsureCacheDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Load(key string) (*domain.CacheEntry, error) {
	f, err := os.Open(config.CacheFilePath(s.dir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open cache entry: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat cache entry: %w", err)
	}

	entry, err := readEntry(bufio.NewReader(f), true, info.Size())
	if err != nil {
		return nil, fmt.Errorf("cache entry %s: %w", key, err)
	}
	return entry, nil
}

// Save writes to a temp file in the same directory and renames it into place,
// so readers never observe a half-written entry.
func (s *FileStore) Save(entry *domain.CacheEntry) error {
	tmp, err := os.CreateTemp(s.dir, entry.Key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := writeEntry(w, entry); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	if err := os.Rename(tmp.Name(), config.CacheFilePath(s.dir, entry.Key)); err != nil {
		return fmt.Errorf("failed to move cache entry into place: %w", err)
	}
	return nil
}

func (s *FileStore) List() ([]domain.CacheEntry, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	entries := make([]domain.CacheEntry, 0, len(matches))
	for _, path := range matches {
		entry, err := readHeader(path)
		if err != nil {
			// unreadable files are still listed so they can be cleared
			entries = append(entries, domain.CacheEntry{Key: strings.TrimSuffix(filepath.Base(path), fileExt)})
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func readHeader(path string) (*domain.CacheEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readEntry(bufio.NewReader(f), false, -1)
}

func (s *FileStore) Delete(key string) error {
	err := os.Remove(config.CacheFilePath(s.dir, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
