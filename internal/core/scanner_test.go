package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultFileScanner_GetFiles_DeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "b.txt", "b")
	writeTestFile(t, root, "a.txt", "a")
	writeTestFile(t, root, "sub/c.txt", "c")

	s := NewDefaultFileScanner()
	ctx := context.Background()

	files, err := s.GetFiles(ctx, FileScanRequest{Root: root})
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, "a.txt", files[0].Path)
	require.Equal(t, "b.txt", files[1].Path)
	require.Equal(t, "sub/c.txt", files[2].Path)
}

func TestDefaultFileScanner_GetFiles_ExcludeWins(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "keep.txt", "k")
	writeTestFile(t, root, "drop.txt", "d")

	s := NewDefaultFileScanner()
	files, err := s.GetFiles(context.Background(), FileScanRequest{Root: root, Exclude: []string{"drop.txt"}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "keep.txt", files[0].Path)
}

func TestDefaultFileScanner_GetTreeVersion_ExcludesConfigFile(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "garden.yml", "config")
	writeTestFile(t, root, "main.go", "package main")

	s := NewDefaultFileScanner()
	tv, err := s.GetTreeVersion(context.Background(), TreeVersionRequest{Root: root, ConfigPath: "garden.yml"})
	require.NoError(t, err)
	require.Len(t, tv.Files, 1)
	require.Equal(t, "main.go", tv.Files[0].Path)
}

func TestDefaultFileScanner_GetTreeVersion_EmptyIncludeSkipsScan(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "main.go", "package main")

	s := NewDefaultFileScanner()
	tv, err := s.GetTreeVersion(context.Background(), TreeVersionRequest{Root: root, ConfigPath: "garden.yml", Include: []string{}})
	require.NoError(t, err)
	require.Empty(t, tv.Files)
	require.NotEmpty(t, tv.ContentHash)
}

func TestDefaultFileScanner_GetTreeVersion_StableAcrossCalls(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "x.txt", "x")
	writeTestFile(t, root, "y.txt", "y")

	s := NewDefaultFileScanner()
	tv1, err := s.GetTreeVersion(context.Background(), TreeVersionRequest{Root: root, ConfigPath: "garden.yml"})
	require.NoError(t, err)
	tv2, err := s.GetTreeVersion(context.Background(), TreeVersionRequest{Root: root, ConfigPath: "garden.yml"})
	require.NoError(t, err)
	require.Equal(t, tv1.ContentHash, tv2.ContentHash)
}
