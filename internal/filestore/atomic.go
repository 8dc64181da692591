package filestore

import (
	"io"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// atomicCopy writes src to dst via a temp file that renameio places on
// dst's filesystem (os.TempDir() when it shares that filesystem, dst's
// directory otherwise), fsyncing and renaming into place, so a reader of dst either sees the
// old content or the complete new content, never a partial write. This is
// the same pattern the teacher uses for renameio.Symlink in
// cmd/autobuilder/autobuilder.go, applied to a regular file instead of a
// symlink.
func atomicCopy(dst string, src io.Reader) error {
	t, err := renameio.TempFile("", dst)
	if err != nil {
		return xerrors.Errorf("creating temp file for %s: %w", dst, err)
	}
	defer t.Cleanup()

	if _, err := io.Copy(t, src); err != nil {
		return xerrors.Errorf("writing %s: %w", dst, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("replacing %s: %w", dst, err)
	}
	return nil
}
