package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

// SnapshotWriter publishes consensus snapshots into a single export
// directory. Files are written under a temporary name, synced and renamed
// into place, then made read-only.
type SnapshotWriter struct {
	Dir    string
	Logger *slog.Logger
}

func NewSnapshotWriter(dir string, logger *slog.Logger) (*SnapshotWriter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &SnapshotWriter{Dir: dir, Logger: logger}, nil
}

func (w *SnapshotWriter) Publish(ctx context.Context, name string, write func(io.Writer) error) (ports.PublishedArtifact, error) {
	logger := application.ResolveLogger(w.Logger)
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return ports.PublishedArtifact{}, fmt.Errorf("invalid snapshot name %q", name)
	}
	final := filepath.Join(w.Dir, name)
	if _, err := os.Stat(final); err == nil {
		return ports.PublishedArtifact{}, fmt.Errorf("snapshot %s already exists", name)
	}

	tmp, err := os.CreateTemp(w.Dir, "."+name+".tmp-*")
	if err != nil {
		return ports.PublishedArtifact{}, fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	counter := &countingWriter{}
	if err := write(io.MultiWriter(tmp, hash, counter)); err != nil {
		return ports.PublishedArtifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return ports.PublishedArtifact{}, err
	}
	if err := tmp.Sync(); err != nil {
		return ports.PublishedArtifact{}, fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return ports.PublishedArtifact{}, fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		return ports.PublishedArtifact{}, fmt.Errorf("chmod snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return ports.PublishedArtifact{}, fmt.Errorf("publish snapshot: %w", err)
	}
	committed = true

	artifact := ports.PublishedArtifact{
		Path:   final,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
		Bytes:  counter.n,
	}
	logger.Info("consensus snapshot file published",
		"event", "review_snapshot_file_published",
		"module", application.ModuleName,
		"layer", "adapter",
		"path", artifact.Path,
		"bytes", artifact.Bytes,
		"sha256", artifact.SHA256,
	)
	return artifact, nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
