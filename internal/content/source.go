package content

import (
	"io/fs"
	"os"
	"time"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// NewSnapshot wraps a content root, stamping Meta.SHA256 with the hash of
// its canonical bundle so every source reports a comparable content hash.
func NewSnapshot(fsys fs.FS, src Source, version string) (*Snapshot, error) {
	b, err := CreateBundle(fsys)
	if err != nil {
		return nil, xerrors.Wrapf(err, "hash %s content", src)
	}
	now := time.Now().UTC()
	return &Snapshot{
		FS: fsys,
		Meta: Meta{
			Version:    version,
			SHA256:     b.SHA256,
			Source:     src,
			VerifiedAt: now,
		},
		LoadedAt: now,
	}, nil
}

// DiskSnapshot serves a local content directory. Files are read live, so
// edits show up on the next request.
func DiskSnapshot(dir string) (*Snapshot, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, xerrors.Wrapf(ErrNotFound, "content dir %s", dir)
	}
	return NewSnapshot(os.DirFS(dir), SourceDisk, "local")
}
