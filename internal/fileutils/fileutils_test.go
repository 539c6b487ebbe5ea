package fileutils_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"banklytik/statement-normalizer/internal/fileutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("test"), 0600))

	assert.True(t, fileutils.FileExists(testFile))
	assert.False(t, fileutils.FileExists(filepath.Join(tmpDir, "nonexistent.txt")))
	assert.False(t, fileutils.FileExists(tmpDir))
}

func TestDirectoryExists(t *testing.T) {
	tmpDir := t.TempDir()

	assert.True(t, fileutils.DirectoryExists(tmpDir))
	assert.False(t, fileutils.DirectoryExists(filepath.Join(tmpDir, "nonexistent")))

	testFile := filepath.Join(tmpDir, "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("test"), 0600))
	assert.False(t, fileutils.DirectoryExists(testFile))
}

func TestEnsureDirectoryExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, fileutils.EnsureDirectoryExists(dir))
	assert.True(t, fileutils.DirectoryExists(dir))
	require.NoError(t, fileutils.EnsureDirectoryExists(dir))
}

func TestReadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0600))

	data, err := fileutils.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	_, err = fileutils.ReadFile(filepath.Join(tmpDir, "missing.json"))
	assert.ErrorContains(t, err, "file does not exist")
}

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.json")

	require.NoError(t, fileutils.AtomicWriteFile(path, []byte("first"), 0600))
	require.NoError(t, fileutils.AtomicWriteFile(path, []byte("second"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")
}

func TestAppendLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "events.jsonl")

	require.NoError(t, fileutils.AppendLine(path, []byte(`{"a":1}`)))
	require.NoError(t, fileutils.AppendLine(path, []byte("{\"a\":2}\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(data))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.json")
	dst := filepath.Join(dir, "dst.json")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0600))

	require.NoError(t, fileutils.CopyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	assert.Error(t, fileutils.CopyFile(filepath.Join(dir, "missing"), dst))
}

func TestListFilesWithExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.PDF", "c.txt", "sub/d.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	}

	files, err := fileutils.ListFilesWithExtension(dir, ".json", ".pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "sub", "d.json"),
	}, files)

	_, err = fileutils.ListFilesWithExtension(filepath.Join(dir, "nope"), ".json")
	assert.Error(t, err)
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")

	unlock, err := fileutils.Lock(context.Background(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = fileutils.Lock(ctx, path)
	assert.Error(t, err, "second lock must wait and give up")

	require.NoError(t, unlock())

	unlock, err = fileutils.Lock(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, unlock())
}
