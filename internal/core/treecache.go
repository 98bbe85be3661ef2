package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Logger is the minimal logging surface a TreeCache implementation accepts.
// Callers typically pass the *slog.Logger built by internal/obs.
type Logger interface {
	Debug(msg string, args ...any)
}

// TreeCache is the content-addressed memoization collaborator used by
// version-hash consumers to avoid recomputing a tree scan. Keys are usually
// an inputVersion string; tags allow bulk invalidation (e.g. "module:<name>").
type TreeCache interface {
	Set(ctx context.Context, log Logger, key string, value []byte, tags []string) error
	Get(ctx context.Context, log Logger, key string) ([]byte, bool, error)
	InvalidateTag(ctx context.Context, tag string) error
}

// MemoryTreeCache is an in-memory TreeCache, the default for tests and
// single-batch runs. Entries are deep-copied on Set/Get, mirroring the
// defensive-copy discipline of a file-system-shaped cache that cannot hand
// out references into its own storage.
type MemoryTreeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	tags    map[string]map[string]struct{} // tag -> set of keys
}

// NewMemoryTreeCache returns an empty MemoryTreeCache.
func NewMemoryTreeCache() *MemoryTreeCache {
	return &MemoryTreeCache{
		entries: make(map[string][]byte),
		tags:    make(map[string]map[string]struct{}),
	}
}

func (c *MemoryTreeCache) Set(_ context.Context, log Logger, key string, value []byte, tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[key] = stored

	for _, tag := range tags {
		set, ok := c.tags[tag]
		if !ok {
			set = make(map[string]struct{})
			c.tags[tag] = set
		}
		set[key] = struct{}{}
	}
	if log != nil {
		log.Debug("tree cache set", "key", key, "tags", tags)
	}
	return nil
}

func (c *MemoryTreeCache) Get(_ context.Context, log Logger, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	if log != nil {
		log.Debug("tree cache hit", "key", key)
	}
	return out, true, nil
}

func (c *MemoryTreeCache) InvalidateTag(_ context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.tags[tag] {
		delete(c.entries, key)
	}
	delete(c.tags, tag)
	return nil
}

// FileTreeCache is a filesystem-backed TreeCache, sharded by the first two
// characters of the key and written atomically (temp file + rename), the
// same crash-safety discipline as the teacher's cache commit path.
type FileTreeCache struct {
	mu      sync.Mutex
	baseDir string
	tags    map[string]map[string]struct{}
}

// NewFileTreeCache returns a TreeCache rooted at baseDir.
func NewFileTreeCache(baseDir string) *FileTreeCache {
	return &FileTreeCache{baseDir: baseDir, tags: make(map[string]map[string]struct{})}
}

func (c *FileTreeCache) Set(_ context.Context, log Logger, key string, value []byte, tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating tree cache dir: %w", err)
	}
	if err := writeFileAtomic(path, value, 0o644); err != nil {
		return fmt.Errorf("writing tree cache entry: %w", err)
	}

	for _, tag := range tags {
		set, ok := c.tags[tag]
		if !ok {
			set = make(map[string]struct{})
			c.tags[tag] = set
		}
		set[key] = struct{}{}
	}
	if log != nil {
		log.Debug("file tree cache set", "key", key, "path", path)
	}
	return nil
}

func (c *FileTreeCache) Get(_ context.Context, log Logger, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading tree cache entry: %w", err)
	}
	if log != nil {
		log.Debug("file tree cache hit", "key", key)
	}
	return data, true, nil
}

func (c *FileTreeCache) InvalidateTag(_ context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.tags[tag] {
		_ = os.Remove(c.entryPath(key))
	}
	delete(c.tags, tag)
	return nil
}

func (c *FileTreeCache) entryPath(key string) string {
	if len(key) < 2 {
		return filepath.Join(c.baseDir, key)
	}
	return filepath.Join(c.baseDir, key[:2], key)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
