package shelltask

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHarvest_OnlyDeclaredOutputsCaptured(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "declared.txt"), []byte("declared"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "undeclared.txt"), []byte("undeclared"), 0o644))

	artifacts, err := harvest(dir, []string{"declared.txt"}, nil)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.Equal(t, "declared", string(artifacts[0].Content))
}

func TestHarvest_DirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	sub := filepath.Join(out, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "root.txt"), []byte("root"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "nested.txt"), []byte("nested"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outside.txt"), []byte("outside"), 0o644))

	artifacts, err := harvest(dir, []string{"out"}, nil)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	for _, a := range artifacts {
		require.NotContains(t, a.Path, "outside.txt")
	}
}

func TestHarvest_MissingOutputFails(t *testing.T) {
	dir := t.TempDir()
	_, err := harvest(dir, []string{"missing.txt"}, nil)
	require.Error(t, err)
}

func TestHarvest_EmptyOutputs(t *testing.T) {
	artifacts, err := harvest(t.TempDir(), nil, nil)
	require.NoError(t, err)
	require.Empty(t, artifacts)
}

func TestHarvest_DeduplicatesOverlapping(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "file.txt"), []byte("content"), 0o644))

	artifacts, err := harvest(dir, []string{"out", "out/file.txt"}, nil)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
}

func TestHarvest_NormalizesPathSeparators(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "file.txt"), []byte("content"), 0o644))

	artifacts, err := harvest(dir, []string{"sub/file.txt"}, nil)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.NotContains(t, artifacts[0].Path, "\\")
}

func TestHarvest_WithNormalizer(t *testing.T) {
	dir := t.TempDir()
	content := "Build started at 2024-12-13T10:30:45Z\nCompleted in 1.234s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.log"), []byte(content), 0o644))

	artifacts, err := harvest(dir, []string{"out.log"}, NewDefaultNormalizer())
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	normalized := string(artifacts[0].Content)
	require.Contains(t, normalized, "<TIMESTAMP>")
	require.Contains(t, normalized, "<DURATION>")
}

func TestEncodeDecodeArtifacts_RoundTrip(t *testing.T) {
	artifacts := []Artifact{{Path: "a.txt", Content: []byte("hello")}}
	data := encodeArtifacts(artifacts)
	decoded, err := decodeArtifacts(data)
	require.NoError(t, err)
	require.Equal(t, artifacts, decoded)
}
