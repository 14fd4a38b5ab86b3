package sitehandler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/ogimage"
	"github.com/aleaurre/portfolio-web/internal/pathutil"
	"github.com/aleaurre/portfolio-web/internal/render"
)

type Handler struct {
	opts   Options
	og     http.Handler
	assets http.Handler
	tracer trace.Tracer
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	og := opts.OGImage
	if og == nil {
		site := opts.Renderer.Site()
		host := strings.TrimPrefix(strings.TrimPrefix(site.BaseURL, "https://"), "http://")
		og = ogimage.NewHandler(opts.Logger, host, site.Person.Name)
	}
	return &Handler{
		opts:   opts,
		og:     og,
		assets: http.StripPrefix("/assets/", http.FileServerFS(render.Assets())),
		tracer: otel.Tracer("portfolio-web/sitehandler"),
	}, nil
}

// RegisterRoutes mounts the site pages on r. It also claims r's NotFound and
// MethodNotAllowed handlers so it should be registered last.
func (h *Handler) RegisterRoutes(r chi.Router) {
	get := func(pattern string, fn http.HandlerFunc) {
		r.Get(pattern, fn)
		r.Head(pattern, fn)
	}
	get("/", h.home)
	get("/about", h.about)
	get("/blog", h.blogIndex)
	get("/blog/{slug}", h.blogPost)
	get("/work", h.workIndex)
	get("/work/{slug}", h.workProject)
	get("/sitemap.xml", h.sitemap)
	get("/rss.xml", h.rss)
	get(render.OGImagePath, h.og.ServeHTTP)
	get("/assets/*", h.serveAsset)

	// everything else is a public/ file or the themed 404
	r.NotFound(h.ServeHTTP)
	r.MethodNotAllowed(h.methodNotAllowed)
}

// ServeHTTP serves static files from the public/ tree of the active snapshot.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.methodNotAllowed(w, r)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	if pub := snap.Public(); pub != nil {
		file, redirectTo, found := resolvePath(r.URL.Path, pub)
		if redirectTo != "" {
			// 308 keeps the method even though we only serve GET/HEAD
			http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
			return
		}
		if found {
			if cc := cacheControlForFile(file, h.opts); cc != "" {
				w.Header().Set("Cache-Control", cc)
			}
			http.ServeFileFS(w, r, pub, file)
			return
		}
	}

	h.serveNotFound(w, r)
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "GET, HEAD")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (h *Handler) serveAsset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", cacheControlForFile(r.URL.Path, h.opts))
	h.assets.ServeHTTP(w, r)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	posts, projects, err := h.sections(r.Context(), snap)
	if err != nil {
		h.serveError(w, r, err)
		return
	}
	h.renderPage(w, r, func(out io.Writer) error {
		return h.opts.Renderer.Home(out, posts, projects)
	})
}

func (h *Handler) about(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.snapshot(w, r); !ok {
		return
	}
	h.renderPage(w, r, h.opts.Renderer.About)
}

func (h *Handler) blogIndex(w http.ResponseWriter, r *http.Request) {
	h.index(w, r, content.BlogDir, h.opts.Renderer.BlogIndex)
}

func (h *Handler) workIndex(w http.ResponseWriter, r *http.Request) {
	h.index(w, r, content.WorkDir, h.opts.Renderer.WorkIndex)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request, dir string, fn func(io.Writer, []content.Item) error) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items, err := h.list(r.Context(), snap, dir)
	if err != nil {
		h.serveError(w, r, err)
		return
	}
	h.renderPage(w, r, func(out io.Writer) error { return fn(out, items) })
}

func (h *Handler) blogPost(w http.ResponseWriter, r *http.Request) {
	h.article(w, r, content.BlogDir, h.opts.Renderer.BlogPost)
}

func (h *Handler) workProject(w http.ResponseWriter, r *http.Request) {
	h.article(w, r, content.WorkDir, h.opts.Renderer.WorkProject)
}

func (h *Handler) article(w http.ResponseWriter, r *http.Request, dir string, fn func(io.Writer, content.Item, []content.Item) error) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	slug := chi.URLParam(r, "slug")
	if !pathutil.ValidSlug(slug) {
		h.serveNotFound(w, r)
		return
	}
	items, err := h.list(r.Context(), snap, dir)
	if err != nil {
		h.serveError(w, r, err)
		return
	}
	it, found := content.Find(items, slug)
	if !found {
		h.serveNotFound(w, r)
		return
	}
	h.renderPage(w, r, func(out io.Writer) error { return fn(out, it, items) })
}

func (h *Handler) sitemap(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	posts, projects, err := h.sections(r.Context(), snap)
	if err != nil {
		h.serveError(w, r, err)
		return
	}
	h.serveDocument(w, r, "application/xml; charset=utf-8", func(out io.Writer) error {
		return h.opts.Renderer.Sitemap(out, posts, projects)
	})
}

func (h *Handler) rss(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	posts, err := h.optionalList(r.Context(), snap, content.BlogDir)
	if err != nil {
		h.serveError(w, r, err)
		return
	}
	h.serveDocument(w, r, "application/rss+xml; charset=utf-8", func(out io.Writer) error {
		return h.opts.Renderer.RSS(out, posts)
	})
}

// snapshot returns the active snapshot, serving the maintenance page when
// there is none.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (*content.Snapshot, bool) {
	snap, ok := h.opts.Content.Get()
	if !ok {
		h.serveMaintenance(w, r)
		return nil, false
	}
	return snap, true
}

// list reads one section of snap inside a span.
func (h *Handler) list(ctx context.Context, snap *content.Snapshot, dir string) ([]content.Item, error) {
	ctx, span := h.tracer.Start(ctx, "content.list",
		trace.WithAttributes(attribute.String("content.dir", dir)),
	)
	defer span.End()

	items, err := h.opts.Lister.List(ctx, snap.FS, dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("content.items", len(items)))
	return items, nil
}

// optionalList is list with a missing section read as empty.
func (h *Handler) optionalList(ctx context.Context, snap *content.Snapshot, dir string) ([]content.Item, error) {
	items, err := h.list(ctx, snap, dir)
	if errors.Is(err, content.ErrNotFound) {
		return nil, nil
	}
	return items, err
}

func (h *Handler) sections(ctx context.Context, snap *content.Snapshot) (posts, projects []content.Item, err error) {
	if posts, err = h.optionalList(ctx, snap, content.BlogDir); err != nil {
		return nil, nil, err
	}
	if projects, err = h.optionalList(ctx, snap, content.WorkDir); err != nil {
		return nil, nil, err
	}
	return posts, projects, nil
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, fn func(io.Writer) error) {
	h.writeRendered(w, r, http.StatusOK, "text/html; charset=utf-8", h.opts.HTMLCacheControl, fn)
}

func (h *Handler) serveDocument(w http.ResponseWriter, r *http.Request, contentType string, fn func(io.Writer) error) {
	h.writeRendered(w, r, http.StatusOK, contentType, h.opts.OtherCacheControl, fn)
}

func (h *Handler) writeRendered(w http.ResponseWriter, r *http.Request, status int, contentType, cacheControl string, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		h.serveError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = buf.WriteTo(w)
}

// serveError maps a missing section or item to 404, everything else to 500.
func (h *Handler) serveError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, content.ErrNotFound) {
		h.serveNotFound(w, r)
		return
	}
	h.opts.Logger.Error(r.Context(), err, "site page failed", "path", r.URL.Path)
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	// maintenance should never be cached
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")

	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	// avoid caching 404 responses
	w.Header().Set("Cache-Control", "no-store")

	var buf bytes.Buffer
	err := h.opts.Renderer.NotFound(&buf)
	if err == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		if r.Method != http.MethodHead {
			_, _ = buf.WriteTo(w)
		}
		return
	}
	h.opts.Logger.Error(r.Context(), err, "themed 404 render failed")

	if existsFile(h.opts.FallbackFS, h.opts.Fallback404File) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.Fallback404File)
		return
	}

	// last resort: plain text
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// http.ServeFileFS writes its own status code, so the first WriteHeader call
// is overridden to force 404/503
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	http.ServeFileFS(sw, r, fsys, name)
}
