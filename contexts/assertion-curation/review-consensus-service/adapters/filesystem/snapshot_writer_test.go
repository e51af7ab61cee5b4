package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWritesReadOnlyFileWithDigest(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewSnapshotWriter(dir, nil)
	require.NoError(t, err)

	body := "{\"assertion_key\":\"a\"}\n"
	artifact, err := writer.Publish(context.Background(), "consensus-1.jsonl", func(w io.Writer) error {
		_, err := io.WriteString(w, body)
		return err
	})
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(body))
	assert.Equal(t, filepath.Join(dir, "consensus-1.jsonl"), artifact.Path)
	assert.Equal(t, hex.EncodeToString(sum[:]), artifact.SHA256)
	assert.Equal(t, int64(len(body)), artifact.Bytes)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	info, err := os.Stat(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())
}

func TestPublishFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewSnapshotWriter(dir, nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = writer.Publish(context.Background(), "consensus-2.jsonl", func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPublishRejectsPathsAndExistingNames(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewSnapshotWriter(dir, nil)
	require.NoError(t, err)
	noop := func(io.Writer) error { return nil }

	_, err = writer.Publish(context.Background(), "../escape.jsonl", noop)
	require.Error(t, err)

	_, err = writer.Publish(context.Background(), "same.jsonl", noop)
	require.NoError(t, err)
	_, err = writer.Publish(context.Background(), "same.jsonl", noop)
	require.Error(t, err)
}
