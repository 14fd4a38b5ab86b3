package content

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/pathutil"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// ListObserver receives per-listing measurements. Implemented by metrics.
type ListObserver interface {
	ObserveContentList(dir string, items int, seconds float64)
}

// Lister reads content items out of a directory. The zero value lists
// DefaultPattern files and logs nothing.
type Lister struct {
	// Pattern is a doublestar glob matched against file names.
	Pattern  string
	Logger   log.Logger
	Observer ListObserver
}

// List parses every content file in dir of fsys.
func List(fsys fs.FS, dir string) ([]Item, error) {
	return Lister{}.List(context.Background(), fsys, dir)
}

// ListDir parses every content file in a directory on disk.
func ListDir(dir string) ([]Item, error) {
	items, err := Lister{}.List(context.Background(), os.DirFS(dir), ".")
	if err != nil {
		return nil, xerrors.Wrapf(err, "list %s", dir)
	}
	return items, nil
}

func (l Lister) pattern() string {
	if l.Pattern == "" {
		return DefaultPattern
	}
	return l.Pattern
}

func (l Lister) logger() log.Logger {
	if l.Logger == nil {
		return log.Nop()
	}
	return l.Logger
}

// ValidatePattern reports whether p is a usable file pattern.
func ValidatePattern(p string) error {
	if !doublestar.ValidatePattern(p) {
		return xerrors.Newf("invalid content pattern %q", p)
	}
	return nil
}

// List reads and parses every file in dir matching the pattern. The result
// is in directory order; callers sort. A missing dir is ErrNotFound.
func (l Lister) List(ctx context.Context, fsys fs.FS, dir string) ([]Item, error) {
	start := time.Now()
	entries, err := l.matches(fsys, dir)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, name := range entries {
		slug := stem(name)
		if prev, dup := seen[slug]; dup {
			return nil, xerrors.Wrapf(ErrDuplicateSlug, "%s: %s and %s", dir, prev, name)
		}
		seen[slug] = name

		it, err := l.readFile(ctx, fsys, path.Join(dir, name), slug)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	if l.Observer != nil {
		l.Observer.ObserveContentList(dir, len(items), time.Since(start).Seconds())
	}
	return items, nil
}

// Read parses the single item named slug in dir.
func (l Lister) Read(ctx context.Context, fsys fs.FS, dir, slug string) (Item, error) {
	if !pathutil.ValidSlug(slug) {
		return Item{}, xerrors.Wrapf(ErrNotFound, "invalid slug %q", slug)
	}
	entries, err := l.matches(fsys, dir)
	if err != nil {
		return Item{}, err
	}
	for _, name := range entries {
		if stem(name) == slug {
			return l.readFile(ctx, fsys, path.Join(dir, name), slug)
		}
	}
	return Item{}, xerrors.Wrapf(ErrNotFound, "%s/%s", dir, slug)
}

// matches returns the names of regular files in dir matching the pattern.
func (l Lister) matches(fsys fs.FS, dir string) ([]string, error) {
	info, err := fs.Stat(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, xerrors.Wrapf(ErrNotFound, "directory %s", dir)
		}
		return nil, xerrors.Wrapf(err, "stat %s", dir)
	}
	if !info.IsDir() {
		return nil, xerrors.Wrapf(ErrNotFound, "%s is not a directory", dir)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", dir)
	}

	pattern := l.pattern()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		// dotfiles are editor/OS artifacts and cannot be addressed by slug
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ok, err := doublestar.Match(pattern, e.Name())
		if err != nil {
			return nil, xerrors.Wrapf(err, "match pattern %q", pattern)
		}
		if ok {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (l Lister) readFile(ctx context.Context, fsys fs.FS, name, slug string) (Item, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Item{}, xerrors.Wrapf(err, "read %s", name)
	}
	p := parseFile(data)
	if p.metaErr != nil {
		l.logger().Warn(ctx, "content: ignoring malformed front-matter",
			"file", name,
			"error", p.metaErr,
		)
	}
	return Item{Slug: slug, Metadata: p.meta, Body: p.body}, nil
}

// stem strips the final extension from a file name.
func stem(name string) string {
	return name[:len(name)-len(path.Ext(name))]
}
