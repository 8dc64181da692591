package endpoint

import (
	"archive/tar"
	"bytes"

	"golang.org/x/xerrors"
)

// tarSingleFile builds a one-entry tar stream suitable for
// CopyToContainer, matching the original endpoint/configured.rs's "copy
// script to /script" step.
func tarSingleFile(path string, content []byte, mode int64) (*bytes.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: path[1:], // CopyToContainer("/", ...) takes entries relative to that root
		Mode: mode,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, xerrors.Errorf("writing tar header for %s: %w", path, err)
	}
	if _, err := tw.Write(content); err != nil {
		return nil, xerrors.Errorf("writing tar content for %s: %w", path, err)
	}
	if err := tw.Close(); err != nil {
		return nil, xerrors.Errorf("closing tar stream: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}
