package content

import (
	"context"
	"io/fs"
	"time"
)

// Snapshot is an immutable content root: the blog and work sections plus
// the public/ static tree.
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	LoadedAt time.Time
}

// Blog lists the blog posts of the snapshot.
func (s *Snapshot) Blog(ctx context.Context, l Lister) ([]Item, error) {
	return l.List(ctx, s.FS, BlogDir)
}

// Work lists the projects of the snapshot.
func (s *Snapshot) Work(ctx context.Context, l Lister) ([]Item, error) {
	return l.List(ctx, s.FS, WorkDir)
}

// Public returns the static file tree, or nil when the root has none.
func (s *Snapshot) Public() fs.FS {
	if info, err := fs.Stat(s.FS, PublicDir); err != nil || !info.IsDir() {
		return nil
	}
	sub, err := fs.Sub(s.FS, PublicDir)
	if err != nil {
		return nil
	}
	return sub
}
