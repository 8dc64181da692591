// Package filestore implements the two-tier artifact store of spec §4.3:
// a read-only release store shadowed by a writable, per-submit staging
// store. Tar-stream ingestion is grounded on the teacher's squashfs
// packing pipeline (internal/squashfs, since deleted — its tar/gzip
// dependency set is kept and repurposed here); atomic promotion is
// grounded on the teacher's cmd/autobuilder/autobuilder.go use of
// github.com/google/renameio to swap a "latest build" symlink without a
// reader ever observing a half-written file.
package filestore

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// ReleaseStore is the immutable, promoted artifact directory (spec §6:
// "release/ (read-only)"). Paths are stored relative to Root.
type ReleaseStore struct {
	Root string
}

// Resolve returns the absolute path of a release-relative artifact path,
// if it exists.
func (r ReleaseStore) Resolve(relPath string) (string, bool) {
	abs := filepath.Join(r.Root, relPath)
	if _, err := os.Stat(abs); err != nil {
		return "", false
	}
	return abs, true
}

// Promote atomically copies a staged file into the release store at the
// same relative path, so that a concurrent reader never observes a
// partially-written release file.
func (r ReleaseStore) Promote(relPath, stagedAbsPath string) error {
	dst := filepath.Join(r.Root, relPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return xerrors.Errorf("creating release directory: %w", err)
	}
	src, err := os.Open(stagedAbsPath)
	if err != nil {
		return xerrors.Errorf("opening staged artifact %s: %w", stagedAbsPath, err)
	}
	defer src.Close()
	if err := atomicCopy(dst, src); err != nil {
		return xerrors.Errorf("promoting %s to release: %w", relPath, err)
	}
	return nil
}
