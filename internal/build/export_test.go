package build

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/render"
	"github.com/aleaurre/portfolio-web/internal/resources"
	"github.com/aleaurre/portfolio-web/internal/sitehandler"
)

func mdx(front, body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte("---\n" + front + "\n---\n" + body + "\n")}
}

func testRoot() fstest.MapFS {
	return fstest.MapFS{
		"blog/posts/alpha.mdx":     mdx("title: Alpha\npublishedAt: 2024-01-01", "Alpha body"),
		"blog/posts/beta.mdx":      mdx("title: Beta\npublishedAt: 2024-03-01", "Beta body"),
		"work/projects/etl.mdx":    mdx("title: ETL\npublishedAt: 2024-02-01", "Pipeline"),
		"public/robots.txt":        {Data: []byte("User-agent: *")},
		"public/images/me.jpg":     {Data: []byte("JPG")},
		"public/drafts/wip.txt":    {Data: []byte("secret")},
		"public/.DS_Store":         {Data: []byte("junk")},
		"public/index.html":        {Data: []byte("public index loses")},
		"public/cv/index.html":     {Data: []byte("<h1>CV</h1>")},
		"blog/posts/.hidden.mdx":   mdx("title: Hidden", "no"),
		"work/projects/notes.txt":  {Data: []byte("ignored")},
		"work/projects/vision.mdx": mdx("title: Vision\npublishedAt: 2023-01-01", "CNN"),
	}
}

func testHandler(t *testing.T, root fstest.MapFS) (http.Handler, *content.Snapshot) {
	t.Helper()
	site, err := resources.Default()
	require.NoError(t, err)
	r, err := render.New(site)
	require.NoError(t, err)

	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: root, Meta: content.Meta{Source: content.SourceDisk}})
	snap, _ := mgr.Get()

	h, err := sitehandler.New(sitehandler.Options{
		Logger:     log.Nop(),
		Content:    mgr,
		Renderer:   r,
		FallbackFS: fstest.MapFS{"maintenance.html": {Data: []byte("maintenance")}},
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return router, snap
}

func readOut(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err, name)
	return string(b)
}

func TestOutputPath(t *testing.T) {
	tests := map[string]string{
		"/":            "index.html",
		"/about":       "about/index.html",
		"/blog/alpha":  "blog/alpha/index.html",
		"/sitemap.xml": "sitemap.xml",
		"/rss.xml":     "rss.xml",
		notFoundRoute:  "404.html",
	}
	for route, want := range tests {
		assert.Equal(t, want, OutputPath(route), route)
	}
}

func TestRoutes(t *testing.T) {
	snap := &content.Snapshot{FS: testRoot()}
	routes, err := Routes(context.Background(), snap, content.Lister{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/", "/about", "/blog", "/work", "/sitemap.xml", "/rss.xml",
		"/blog/beta", "/blog/alpha",
		"/work/etl", "/work/vision",
	}, routes)
}

func TestRoutes_MissingSection(t *testing.T) {
	snap := &content.Snapshot{FS: fstest.MapFS{
		"blog/posts/only.mdx": mdx("title: Only", "x"),
	}}
	routes, err := Routes(context.Background(), snap, content.Lister{})
	require.NoError(t, err)
	assert.Contains(t, routes, "/blog/only")
	for _, r := range routes {
		assert.False(t, strings.HasPrefix(r, "/work/"), r)
	}
}

func TestRoutes_DuplicateSlug(t *testing.T) {
	snap := &content.Snapshot{FS: fstest.MapFS{
		"blog/posts/a.mdx":    mdx("title: A", "x"),
		"blog/posts/a.md":     mdx("title: also A", "x"),
		"work/projects/p.mdx": mdx("title: P", "x"),
	}}
	_, err := Routes(context.Background(), snap, content.Lister{Pattern: "*.{md,mdx}"})
	assert.ErrorIs(t, err, content.ErrDuplicateSlug)
}

func TestExport(t *testing.T) {
	root := testRoot()
	h, snap := testHandler(t, root)
	out := t.TempDir()

	rep, err := Export(context.Background(), Options{
		Handler:  h,
		Snapshot: snap,
		OutDir:   out,
		Exclude:  []string{"drafts/**"},
	})
	require.NoError(t, err)

	// 6 fixed routes, 2 posts, 2 projects, 404
	assert.Equal(t, 11, rep.Pages)
	assert.Positive(t, rep.Files)
	assert.Positive(t, rep.Bytes)

	assert.Contains(t, readOut(t, out, "index.html"), "Beta", "home lists the newest post")
	assert.NotContains(t, readOut(t, out, "index.html"), "public index loses")
	assert.Contains(t, readOut(t, out, "blog/alpha/index.html"), "Alpha body")
	assert.Contains(t, readOut(t, out, "work/vision/index.html"), "CNN")
	assert.Contains(t, readOut(t, out, "sitemap.xml"), "/blog/alpha")
	assert.Contains(t, readOut(t, out, "rss.xml"), "<rss")
	assert.NotEmpty(t, readOut(t, out, "404.html"))
	assert.Equal(t, "User-agent: *", readOut(t, out, "robots.txt"))
	assert.Equal(t, "<h1>CV</h1>", readOut(t, out, "cv/index.html"))
	assert.NotEmpty(t, readOut(t, out, "assets/site.css"))

	assert.NoFileExists(t, filepath.Join(out, "drafts", "wip.txt"))
	assert.NoFileExists(t, filepath.Join(out, ".DS_Store"))
}

func TestExport_Clean(t *testing.T) {
	h, snap := testHandler(t, testRoot())
	out := t.TempDir()
	stale := filepath.Join(out, "stale.html")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	_, err := Export(context.Background(), Options{Handler: h, Snapshot: snap, OutDir: out, Clean: true})
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(out, "index.html"))
}

func TestExport_Validation(t *testing.T) {
	h, snap := testHandler(t, testRoot())
	tests := []struct {
		name string
		opts Options
	}{
		{"no handler", Options{Snapshot: snap, OutDir: "x"}},
		{"no snapshot", Options{Handler: h, OutDir: "x"}},
		{"no out dir", Options{Handler: h, Snapshot: snap}},
		{"bad exclude", Options{Handler: h, Snapshot: snap, OutDir: "x", Exclude: []string{"[oops"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Export(context.Background(), tt.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestExport_HandlerFailure(t *testing.T) {
	_, snap := testHandler(t, testRoot())
	broken := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := Export(context.Background(), Options{Handler: broken, Snapshot: snap, OutDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestWatch_InitialBuildAndRebuild(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "blog", "posts"), 0o755))

	var builds atomic.Int32
	rebuilt := make(chan struct{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, WatchOptions{
			Root:     root,
			Debounce: 20 * time.Millisecond,
			Rebuild: func(context.Context) (*Report, error) {
				if builds.Add(1) > 1 {
					rebuilt <- struct{}{}
				}
				return &Report{}, nil
			},
		})
	}()

	require.Eventually(t, func() bool { return builds.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "blog", "posts", "new.mdx"), []byte("---\ntitle: x\n---\n"), 0o644))

	select {
	case <-rebuilt:
	case <-time.After(3 * time.Second):
		t.Fatal("no rebuild after file change")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatch_RequiresRebuild(t *testing.T) {
	err := Watch(context.Background(), WatchOptions{Root: t.TempDir()})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
