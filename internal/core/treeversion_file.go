package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// treeVersionFileName is the on-disk cache file a VersionHasher caller may
// persist alongside a task's entity directory, per spec.md §6: read when
// present and preferred over re-scanning.
const treeVersionFileName = ".garden-version"

// treeVersionFile is the JSON shape written to disk: POSIX-normalized
// relative paths regardless of host OS.
type treeVersionFile struct {
	ContentHash string         `json:"contentHash"`
	Files       []ScannedFile `json:"files"`
}

// TreeVersionFilePath returns the path GraphSolverConfig-adjacent callers
// should read/write for a project/entity pair.
func TreeVersionFilePath(projectDir, entity string) string {
	return filepath.Join(projectDir, entity, treeVersionFileName)
}

// toPosixPath turns Windows-style backslashes into forward slashes on every
// host OS (filepath.ToSlash only does so where the separator is a backslash).
func toPosixPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// ReadTreeVersionFile loads a persisted TreeVersion, or (nil, false, nil) if
// the file does not exist.
func ReadTreeVersionFile(path string) (*TreeVersion, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading tree version file %q: %w", path, err)
	}

	var stored treeVersionFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false, fmt.Errorf("parsing tree version file %q: %w", path, err)
	}

	files := make([]ScannedFile, len(stored.Files))
	for i, f := range stored.Files {
		files[i] = ScannedFile{Path: toPosixPath(f.Path), Hash: f.Hash}
	}
	return &TreeVersion{ContentHash: stored.ContentHash, Files: files}, true, nil
}

// WriteTreeVersionFile persists v to path atomically: write to a sibling
// temp file, then rename over the destination, mirroring the teacher's
// writeFileAtomic discipline (internal/core/cache.go) so a crash mid-write
// never leaves a corrupt cache file behind.
func WriteTreeVersionFile(path string, v *TreeVersion) error {
	files := make([]ScannedFile, len(v.Files))
	for i, f := range v.Files {
		files[i] = ScannedFile{Path: toPosixPath(f.Path), Hash: f.Hash}
	}
	data, err := json.MarshalIndent(treeVersionFile{ContentHash: v.ContentHash, Files: files}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tree version file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %q to %q: %w", tmpName, path, err)
	}
	return nil
}
