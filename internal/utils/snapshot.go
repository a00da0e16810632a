package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// SnapshotUploader copies the store file and the cookie directory to a
// destination directory, typically a mounted network share. Each backup
// lands in its own timestamped subdirectory.
type SnapshotUploader struct {
	destDir   string
	dbFile    string
	cookieDir string
	logger    *logrus.Logger
}

// NewSnapshotUploader creates a snapshot uploader
func NewSnapshotUploader(destDir, dbFile, cookieDir string, logger *logrus.Logger) *SnapshotUploader {
	return &SnapshotUploader{
		destDir:   destDir,
		dbFile:    dbFile,
		cookieDir: cookieDir,
		logger:    logger,
	}
}

// Upload copies the current store and cookies into a fresh snapshot
// directory
func (u *SnapshotUploader) Upload(ctx context.Context) error {
	snapDir := filepath.Join(u.destDir, time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(snapDir, 0700); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := copyFile(ctx, u.dbFile, filepath.Join(snapDir, filepath.Base(u.dbFile))); err != nil {
		return fmt.Errorf("failed to copy store: %w", err)
	}

	entries, err := os.ReadDir(u.cookieDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cookie directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(u.cookieDir, entry.Name())
		if err := copyFile(ctx, src, filepath.Join(snapDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to copy %s: %w", entry.Name(), err)
		}
	}

	u.logger.WithField("dir", snapDir).Info("Snapshot written")
	return nil
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
