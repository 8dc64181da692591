package filestore

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/pgzip"
	"golang.org/x/xerrors"
)

// StagingStore is the writable, per-submit artifact directory (spec §6:
// "staging/ (writable, per-submit subdirectory)"). All writes in a given
// submit serialize through writeMu, matching spec §5's "writes are
// serialized by an exclusive lock over the tar-stream ingestion."
type StagingStore struct {
	Root string

	writeMu sync.Mutex
}

// NewStagingStore returns a StagingStore rooted at root/submitUUID,
// creating the directory if necessary.
func NewStagingStore(root, submitUUID string) (*StagingStore, error) {
	dir := filepath.Join(root, submitUUID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Errorf("creating staging dir %s: %w", dir, err)
	}
	return &StagingStore{Root: dir}, nil
}

// Resolve returns the absolute path of a staging-relative artifact path,
// if it exists.
func (s *StagingStore) Resolve(relPath string) (string, bool) {
	abs := filepath.Join(s.Root, relPath)
	if _, err := os.Stat(abs); err != nil {
		return "", false
	}
	return abs, true
}

// WriteFromTarStream ingests the tar stream an Endpoint returns from
// copying a job's output directory out of its container (spec §4.1 step
// 6), writing each regular file under this store's root and returning
// the paths written, relative to Root. The stream is gzip-decompressed
// first if it carries a gzip magic header; Docker's container-copy API
// returns a bare tar, but the endpoint abstraction in this package also
// accepts a pre-gzipped stream for test fixtures and for endpoints
// fronted by a compressing proxy.
func (s *StagingStore) WriteFromTarStream(ctx context.Context, r io.Reader) ([]string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, xerrors.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		return s.writeTar(ctx, gz)
	}
	return s.writeTar(ctx, br)
}

func (s *StagingStore) writeTar(ctx context.Context, r io.Reader) ([]string, error) {
	tr := tar.NewReader(r)
	var written []string
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, xerrors.Errorf("reading tar stream: %w", err)
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			continue // symlinks/devices/etc are not artifacts
		}
		dst := filepath.Join(s.Root, filepath.Clean(hdr.Name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return written, xerrors.Errorf("creating directory for %s: %w", hdr.Name, err)
		}
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
		if err != nil {
			return written, xerrors.Errorf("creating %s: %w", dst, err)
		}
		_, copyErr := io.Copy(f, tr)
		closeErr := f.Close()
		if copyErr != nil {
			return written, xerrors.Errorf("writing %s: %w", dst, copyErr)
		}
		if closeErr != nil {
			return written, xerrors.Errorf("closing %s: %w", dst, closeErr)
		}
		written = append(written, filepath.Clean(hdr.Name))
	}
	return written, nil
}
