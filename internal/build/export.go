// Package build renders the site into a directory of static files.
//
// Export drives the same http.Handler the server uses, one in-process request
// per route, so the exported pages match what the server would send.
package build

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/render"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// notFoundRoute is requested to capture the themed 404 page
const notFoundRoute = "/__not_found__"

var ErrInvalidOptions = errors.New("build: invalid options")

type Options struct {
	Logger log.Logger

	// Handler serves the site routes (sitehandler mounted on a router).
	Handler http.Handler
	// Snapshot is the content root being exported.
	Snapshot *content.Snapshot
	Lister   content.Lister

	OutDir string
	// Clean removes OutDir before writing.
	Clean bool
	// Exclude holds doublestar patterns of public/ files that are not copied.
	Exclude []string
	// Concurrency bounds in-flight page renders, default 4.
	Concurrency int
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
}

func (o *Options) validate() error {
	if o.Handler == nil {
		return xerrors.Wrap(ErrInvalidOptions, "handler is required")
	}
	if o.Snapshot == nil || o.Snapshot.FS == nil {
		return xerrors.Wrap(ErrInvalidOptions, "snapshot is required")
	}
	if strings.TrimSpace(o.OutDir) == "" {
		return xerrors.Wrap(ErrInvalidOptions, "out dir is required")
	}
	for _, p := range o.Exclude {
		if !doublestar.ValidatePattern(p) {
			return xerrors.Wrapf(ErrInvalidOptions, "invalid exclude pattern %q", p)
		}
	}
	return nil
}

// Report summarizes one export.
type Report struct {
	Pages    int           `json:"pages"`
	Files    int           `json:"files"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

type tally struct {
	mu sync.Mutex
	r  Report
}

func (t *tally) page(n int64) {
	t.mu.Lock()
	t.r.Pages++
	t.r.Bytes += n
	t.mu.Unlock()
}

func (t *tally) file(n int64) {
	t.mu.Lock()
	t.r.Files++
	t.r.Bytes += n
	t.mu.Unlock()
}

// Export writes every route of the site plus public/ files and embedded
// assets under opts.OutDir.
func Export(ctx context.Context, opts Options) (*Report, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	L := opts.Logger

	if opts.Clean {
		if err := os.RemoveAll(opts.OutDir); err != nil {
			return nil, xerrors.Wrapf(err, "clean %s", opts.OutDir)
		}
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", opts.OutDir)
	}

	var t tally

	// public first so generated pages win on collisions
	if pub := opts.Snapshot.Public(); pub != nil {
		if err := copyTree(pub, opts.OutDir, opts.Exclude, &t); err != nil {
			return nil, xerrors.Wrap(err, "copy public")
		}
	}
	if err := copyTree(render.Assets(), filepath.Join(opts.OutDir, "assets"), nil, &t); err != nil {
		return nil, xerrors.Wrap(err, "copy assets")
	}

	routes, err := Routes(ctx, opts.Snapshot, opts.Lister)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, route := range routes {
		g.Go(func() error {
			n, err := exportRoute(gctx, opts.Handler, route, http.StatusOK, opts.OutDir)
			if err != nil {
				return err
			}
			t.page(n)
			return nil
		})
	}
	g.Go(func() error {
		n, err := exportRoute(gctx, opts.Handler, notFoundRoute, http.StatusNotFound, opts.OutDir)
		if err != nil {
			return err
		}
		t.page(n)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t.r.Duration = time.Since(start)
	L.Info(ctx, "site exported",
		"out_dir", opts.OutDir,
		"pages", t.r.Pages,
		"files", t.r.Files,
		"bytes", t.r.Bytes,
		"duration", t.r.Duration.String(),
	)
	return &t.r, nil
}

// Routes lists every page route of a snapshot: the fixed pages, both feeds
// and one route per blog post and project. Missing sections contribute no
// item routes.
func Routes(ctx context.Context, snap *content.Snapshot, l content.Lister) ([]string, error) {
	routes := []string{"/", "/about", "/blog", "/work", "/sitemap.xml", "/rss.xml"}

	sections := []struct{ dir, prefix string }{
		{content.BlogDir, "/blog/"},
		{content.WorkDir, "/work/"},
	}
	for _, s := range sections {
		items, err := l.List(ctx, snap.FS, s.dir)
		if errors.Is(err, content.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, xerrors.Wrapf(err, "list %s", s.dir)
		}
		content.SortByPublished(items)
		for _, it := range items {
			routes = append(routes, s.prefix+it.Slug)
		}
	}
	return routes, nil
}

// OutputPath maps a route to its file below the output root.
func OutputPath(route string) string {
	switch {
	case route == notFoundRoute:
		return "404.html"
	case route == "/":
		return "index.html"
	case path.Ext(route) != "":
		return strings.TrimPrefix(route, "/")
	default:
		return strings.TrimPrefix(route, "/") + "/index.html"
	}
}

func exportRoute(ctx context.Context, h http.Handler, route string, want int, outDir string) (int64, error) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, route, http.NoBody)
	h.ServeHTTP(rec, req)

	if rec.Code != want {
		return 0, xerrors.Newf("export %s: status %d, want %d", route, rec.Code, want)
	}

	dst := filepath.Join(outDir, filepath.FromSlash(OutputPath(route)))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, xerrors.Wrapf(err, "export %s", route)
	}
	body := rec.Body.Bytes()
	if err := os.WriteFile(dst, body, 0o644); err != nil {
		return 0, xerrors.Wrapf(err, "export %s", route)
	}
	return int64(len(body)), nil
}

// copyTree copies regular files of src into dst, skipping dotfiles and
// anything matching exclude.
func copyTree(src fs.FS, dst string, exclude []string, t *tally) error {
	return fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		for _, pat := range exclude {
			if ok, _ := doublestar.Match(pat, p); ok {
				return nil
			}
		}

		n, err := copyFile(src, p, filepath.Join(dst, filepath.FromSlash(p)))
		if err != nil {
			return err
		}
		t.file(n)
		return nil
	})
}

func copyFile(src fs.FS, name, dst string) (int64, error) {
	in, err := src.Open(name)
	if err != nil {
		return 0, xerrors.Wrapf(err, "open %s", name)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, xerrors.Wrapf(err, "mkdir for %s", name)
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, xerrors.Wrapf(err, "create %s", dst)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, xerrors.Wrapf(err, "copy %s", name)
	}
	return n, nil
}
