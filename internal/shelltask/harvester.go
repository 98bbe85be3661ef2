package shelltask

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Artifact is a single harvested output file.
type Artifact struct {
	Path    string
	Content []byte
}

// harvest collects only the files declared in outputs, never "whatever
// changed". A directory output is expanded recursively. Paths are sorted so
// the resulting artifact list is stable across machines.
func harvest(baseDir string, outputs []string, normalizer OutputNormalizer) ([]Artifact, error) {
	if len(outputs) == 0 {
		return []Artifact{}, nil
	}

	var allPaths []string
	for _, output := range outputs {
		full := output
		if !filepath.IsAbs(output) {
			full = filepath.Join(baseDir, output)
		}

		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("declared output does not exist: %s", output)
			}
			return nil, fmt.Errorf("stat output %q: %w", output, err)
		}

		if info.IsDir() {
			files, err := filesUnder(full)
			if err != nil {
				return nil, fmt.Errorf("collecting files from %q: %w", output, err)
			}
			allPaths = append(allPaths, files...)
		} else {
			allPaths = append(allPaths, full)
		}
	}

	sort.Strings(allPaths)
	allPaths = dedupeSorted(allPaths)

	artifacts := make([]Artifact, 0, len(allPaths))
	for _, path := range allPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", path, err)
		}
		if normalizer != nil {
			content = normalizer.Normalize(content)
		}
		artifacts = append(artifacts, Artifact{Path: filepath.ToSlash(path), Content: content})
	}
	return artifacts, nil
}

func filesUnder(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func dedupeSorted(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			out = append(out, sorted[i])
		}
	}
	return out
}
