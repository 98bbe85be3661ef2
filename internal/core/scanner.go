package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ScannedFile is one entry of a FileScanner.GetFiles result: a POSIX-
// normalized relative path paired with the content hash of that file.
type ScannedFile struct {
	Path string
	Hash string
}

// FileScanRequest parameterizes FileScanner.GetFiles.
type FileScanRequest struct {
	Root            string
	Include         []string
	Exclude         []string
	PathDescription string
}

// TreeVersion summarizes a source tree for a config: a content hash over the
// (sorted, filtered) file list plus the file list itself.
type TreeVersion struct {
	ContentHash string
	Files       []ScannedFile
}

// TreeVersionRequest parameterizes FileScanner.GetTreeVersion. ConfigPath is
// excluded from the scan unconditionally. CacheFilePath, when set, names a
// persisted .garden-version file (see treeversion_file.go) that is read and
// preferred over re-scanning when present (spec.md §6).
type TreeVersionRequest struct {
	Root          string
	ConfigPath    string
	Include       []string
	Exclude       []string
	CacheFilePath string
}

// FileScanner is the external collaborator contract used by VersionHasher
// callers to obtain a content-addressed tree summary. Implementations must
// be deterministic given identical working-copy content.
type FileScanner interface {
	GetFiles(ctx context.Context, req FileScanRequest) ([]ScannedFile, error)
	GetTreeVersion(ctx context.Context, req TreeVersionRequest) (*TreeVersion, error)
}

// DefaultFileScanner is an os-backed FileScanner: sorted glob expansion,
// content-based hashing (not metadata), POSIX path normalization. Grounded
// in the deterministic-resolution idiom of an input resolver that reads
// content rather than trusting directory iteration order.
type DefaultFileScanner struct{}

// NewDefaultFileScanner returns the default, filesystem-backed FileScanner.
func NewDefaultFileScanner() *DefaultFileScanner { return &DefaultFileScanner{} }

// GetFiles walks req.Root, applies include/exclude glob patterns, and
// returns a deterministic, sorted list of {path, hash} pairs. When Include
// is nil, every regular file under Root is a candidate.
func (s *DefaultFileScanner) GetFiles(ctx context.Context, req FileScanRequest) ([]ScannedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths, err := collectPaths(req.Root, req.Include, req.Exclude)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", req.PathDescription, err)
	}

	files := make([]ScannedFile, 0, len(paths))
	for _, rel := range paths {
		hash, err := hashFile(filepath.Join(req.Root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("hashing %q: %w", rel, err)
		}
		files = append(files, ScannedFile{Path: rel, Hash: hash})
	}
	return files, nil
}

// GetTreeVersion computes a TreeVersion over req.Root honoring Include/
// Exclude and always excluding ConfigPath. When Include is an empty
// (non-nil) slice, scanning is skipped entirely and the content hash is
// derived from the config path alone.
func (s *DefaultFileScanner) GetTreeVersion(ctx context.Context, req TreeVersionRequest) (*TreeVersion, error) {
	if req.Include != nil && len(req.Include) == 0 {
		return &TreeVersion{ContentHash: hashBytes([]byte(req.ConfigPath)), Files: []ScannedFile{}}, nil
	}

	if req.CacheFilePath != "" {
		if cached, ok, err := ReadTreeVersionFile(req.CacheFilePath); err == nil && ok {
			return cached, nil
		}
	}

	files, err := s.GetFiles(ctx, FileScanRequest{
		Root:            req.Root,
		Include:         req.Include,
		Exclude:         req.Exclude,
		PathDescription: req.Root,
	})
	if err != nil {
		return nil, err
	}

	configRel := filepath.ToSlash(req.ConfigPath)
	filtered := files[:0]
	for _, f := range files {
		if f.Path == configRel {
			continue
		}
		filtered = append(filtered, f)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Path < filtered[j].Path })

	h := sha256.New()
	for _, f := range filtered {
		h.Write([]byte(f.Path))
		h.Write([]byte(f.Hash))
	}
	return &TreeVersion{ContentHash: "v-" + hex.EncodeToString(h.Sum(nil))[:10], Files: filtered}, nil
}

func collectPaths(root string, include, exclude []string) ([]string, error) {
	patterns := include
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}

	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := expandGlob(root, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			seen[m] = struct{}{}
		}
	}

	excluded, err := expandExcludeSet(root, exclude)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		if _, skip := excluded[p]; skip {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func expandExcludeSet(root string, patterns []string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := expandGlob(root, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			set[m] = struct{}{}
		}
	}
	return set, nil
}

// expandGlob walks root and returns POSIX-normalized relative paths of
// regular files matching pattern ("**" matches every file).
func expandGlob(root, pattern string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if pattern == "**" {
			out = append(out, rel)
			return nil
		}
		matched, err := filepath.Match(pattern, rel)
		if err != nil {
			return err
		}
		if matched {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func hashFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return hashBytes(content), nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
