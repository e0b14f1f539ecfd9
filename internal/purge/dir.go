package purge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirCacheStorage treats every subdirectory of Root as a named cache.
type DirCacheStorage struct {
	Root string
}

var _ CacheStorage = (*DirCacheStorage)(nil)

// NewDirCacheStorage returns a CacheStorage rooted at root.
func NewDirCacheStorage(root string) *DirCacheStorage {
	return &DirCacheStorage{Root: root}
}

// Keys lists subdirectory names. A missing root has no caches.
func (d *DirCacheStorage) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache root %s: %w", d.Root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Delete removes the named cache directory and everything in it.
func (d *DirCacheStorage) Delete(_ context.Context, name string) (bool, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false, fmt.Errorf("invalid cache name %q", name)
	}
	path := filepath.Join(d.Root, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("removing cache %s: %w", name, err)
	}
	return true, nil
}
