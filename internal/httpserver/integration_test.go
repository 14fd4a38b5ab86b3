package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/go-chi/chi/v5"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/contentapi"
	"github.com/aleaurre/portfolio-web/internal/httpserver"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/render"
	"github.com/aleaurre/portfolio-web/internal/resources"
	"github.com/aleaurre/portfolio-web/internal/sitehandler"
)

func mdx(front, body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte("---\n" + front + "\n---\n" + body + "\n")}
}

// fullStack is the public handler as main assembles it, minus telemetry,
// over an in-memory snapshot.
func fullStack(t *testing.T) http.Handler {
	t.Helper()

	root := fstest.MapFS{
		"blog/posts/hello.mdx":    mdx("title: Hello World\npublishedAt: 2024-02-01", "First post"),
		"blog/posts/older.mdx":    mdx("title: Older\npublishedAt: 2023-02-01", "Older post"),
		"work/projects/etl.mdx":   mdx("title: ETL\npublishedAt: 2024-01-01", "Pipeline"),
		"public/style.css":        {Data: []byte("body { color: red; }")},
		"public/about/index.html": {Data: []byte("<html><body>About page</body></html>")},
	}

	mgr := content.NewManager()
	mgr.Set(content.Snapshot{
		FS:   root,
		Meta: content.Meta{Version: "v1.0.0", SHA256: "abc123def456", Source: content.SourceDisk},
	})

	fallbackFS := fstest.MapFS{
		"maintenance.html": {Data: []byte("<html><body>Maintenance</body></html>")},
		"404.html":         {Data: []byte("<html><body>Fallback 404</body></html>")},
	}

	site, err := resources.Default()
	if err != nil {
		t.Fatalf("resources.Default: %v", err)
	}
	renderer, err := render.New(site)
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}

	lister := content.Lister{Logger: log.Nop()}
	siteH, err := sitehandler.New(sitehandler.Options{
		Logger:     log.Nop(),
		Content:    mgr,
		Renderer:   renderer,
		Lister:     lister,
		FallbackFS: fallbackFS,
	})
	if err != nil {
		t.Fatalf("sitehandler.New: %v", err)
	}
	api := contentapi.NewAPI(mgr, lister, log.Nop())

	return httpserver.NewHandler(httpserver.Options{
		Logger:      log.Nop(),
		ContentInfo: mgr,
		APIRoutes: func(r chi.Router) {
			siteH.RegisterRoutes(r)
			api.RegisterRoutes(r)
		},
	})
}

var securityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"Referrer-Policy",
	"Cross-Origin-Embedder-Policy",
	"Cross-Origin-Opener-Policy",
	"Cross-Origin-Resource-Policy",
	"Permissions-Policy",
}

func TestFullStack(t *testing.T) {
	t.Parallel()
	h := fullStack(t)

	tests := []struct {
		name, method, target string
		code                 int
		body                 string
		header               map[string]string
	}{
		{name: "home lists newest post", target: "/", code: http.StatusOK, body: "Hello World",
			header: map[string]string{"X-Content-Bundle-Version": "v1.0.0", "X-Content-Source": "disk"}},
		{name: "blog article", target: "/blog/hello", code: http.StatusOK, body: "First post"},
		// /about is rendered; the slash form reaches the public tree
		{name: "public index", target: "/about/", code: http.StatusOK, body: "About page"},
		{name: "static file", target: "/style.css", code: http.StatusOK, body: "color: red"},
		{name: "missing path", target: "/does-not-exist", code: http.StatusNotFound},
		{name: "post", method: http.MethodPost, target: "/", code: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(method, tt.target, http.NoBody))

			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body does not contain %q", tt.body)
			}
			// every response, errors included, carries the hardening headers
			for _, name := range append(securityHeaders, "X-Request-Id", "X-Content-Hash") {
				if rec.Header().Get(name) == "" {
					t.Errorf("missing %s", name)
				}
			}
			for name, want := range tt.header {
				if got := rec.Header().Get(name); got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestFullStack_ContentAPI(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	fullStack(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/content/blog?exclude=hello", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp contentapi.ListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Total is the section size; exclude only narrows Items
	if resp.Total != 2 || len(resp.Items) != 1 || resp.Items[0].Slug != "older" {
		t.Fatalf("resp = %+v, want total 2 with only older", resp)
	}
}

func TestFullStack_HeadHasNoBody(t *testing.T) {
	t.Parallel()
	h := fullStack(t)
	get, head := httptest.NewRecorder(), httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	h.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/", http.NoBody))
	if head.Code != get.Code || head.Body.Len() != 0 {
		t.Fatalf("HEAD = %d with %d bytes, GET = %d", head.Code, head.Body.Len(), get.Code)
	}
}
