package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesMissingDirectory(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "artifacts")

	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRejectsEmptyAndNonDirectory(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseDir: "  "})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "a-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(Config{BaseDir: file})
	assert.Error(t, err)
}

func TestPutOpenRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "scraped_emails_task-1.csv", []byte("Website,Emails Found\n"))
	require.NoError(t, err)
	assert.Contains(t, ref, "file://")

	rc, err := store.Open(context.Background(), "scraped_emails_task-1.csv")
	require.NoError(t, err)
	defer func() { require.NoError(t, rc.Close()) }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "Website,Emails Found\n", string(data))
}

func TestOpenMissingArtifact(t *testing.T) {
	t.Parallel()
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "nope.csv")
	assert.Error(t, err)
}

func TestSafeName(t *testing.T) {
	t.Parallel()

	assert.True(t, SafeName("scraped_emails_abc.csv"))
	assert.False(t, SafeName(""))
	assert.False(t, SafeName("../secrets.txt"))
	assert.False(t, SafeName("..\\secrets.txt"))
	assert.False(t, SafeName("/etc/passwd"))
	assert.False(t, SafeName("nested/name.csv"))
	assert.False(t, SafeName(`nested\name.csv`))
}

func TestPutRejectsUnsafeName(t *testing.T) {
	t.Parallel()
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape.csv", []byte("x"))
	assert.Error(t, err)

	_, err = store.Open(context.Background(), "../escape.csv")
	assert.Error(t, err)
}
