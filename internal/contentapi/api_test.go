package contentapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
)

type stubProvider struct {
	snap *content.Snapshot
	ok   bool
}

func (s *stubProvider) Get() (*content.Snapshot, bool) { return s.snap, s.ok }

func file(front, body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte("---\n" + front + "\n---\n" + body)}
}

func testSnapshot() *content.Snapshot {
	return &content.Snapshot{
		FS: fstest.MapFS{
			"blog/posts/a.mdx":      file("title: A\npublishedAt: 2024-06-01", "cuerpo A"),
			"blog/posts/b.mdx":      file("title: B\npublishedAt: 2023-01-01", "cuerpo B"),
			"blog/posts/c.mdx":      file("title: C\npublishedAt: 2022-03-01", "cuerpo C"),
			"blog/posts/d.mdx":      file("title: D", "sin fecha"),
			"work/projects/etl.mdx": file("title: ETL\npublishedAt: 2024-05-01", "pipeline"),
		},
		Meta: content.Meta{
			Version: "2025.03.01",
			SHA256:  "abc123",
			Source:  content.SourceS3,
			Signed:  true,
		},
		LoadedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newRouter(p SnapshotProvider) http.Handler {
	api := NewAPI(p, content.Lister{}, log.Nop())
	api.now = func() time.Time { return time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec.Code
}

func slugs(items []content.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Slug
	}
	return out
}

func TestHandleList(t *testing.T) {
	h := newRouter(&stubProvider{snap: testSnapshot(), ok: true})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all sorted", "", []string{"a", "b", "c", "d"}},
		{"recent posts", "?exclude=a&start=1&end=2", []string{"b", "c"}},
		{"from third", "?start=3", []string{"c", "d"}},
		{"repeated exclude", "?exclude=a&exclude=b", []string{"c", "d"}},
		{"comma exclude", "?exclude=a,%20c", []string{"b", "d"}},
		{"out of range", "?start=9", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ListResponse
			code := get(t, h, "/api/content/blog"+tt.query, &resp)
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, "blog", resp.Section)
			assert.Equal(t, 4, resp.Total)
			assert.Equal(t, tt.want, slugs(resp.Items))
		})
	}
}

func TestHandleList_ItemShape(t *testing.T) {
	h := newRouter(&stubProvider{snap: testSnapshot(), ok: true})

	var raw struct {
		Items []map[string]any `json:"items"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/content/work", &raw))
	require.Len(t, raw.Items, 1)
	assert.Equal(t, "etl", raw.Items[0]["slug"])
	assert.Equal(t, "pipeline", raw.Items[0]["content"])
	meta, ok := raw.Items[0]["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ETL", meta["title"])
}

func TestHandleList_Errors(t *testing.T) {
	h := newRouter(&stubProvider{snap: testSnapshot(), ok: true})

	var e errorResponse
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/content/photos", &e))
	assert.Equal(t, "unknown section", e.Error)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/content/blog?start=x", &e))
	assert.Equal(t, "invalid start", e.Error)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/content/blog?end=-1", &e))

	empty := newRouter(&stubProvider{snap: &content.Snapshot{FS: fstest.MapFS{}}, ok: true})
	assert.Equal(t, http.StatusNotFound, get(t, empty, "/api/content/blog", &e))
	assert.Equal(t, "not found", e.Error)

	down := newRouter(&stubProvider{})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, down, "/api/content/blog", &e))
}

func TestHandleItem(t *testing.T) {
	h := newRouter(&stubProvider{snap: testSnapshot(), ok: true})

	var it content.Item
	require.Equal(t, http.StatusOK, get(t, h, "/api/content/blog/b", &it))
	assert.Equal(t, "b", it.Slug)
	assert.Equal(t, "B", it.Metadata.Title())
	assert.Equal(t, "cuerpo B", it.Body)

	var e errorResponse
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/content/blog/zzz", &e))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/content/blog/.hidden", &e))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/content/docs/a", &e))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, newRouter(&stubProvider{}), "/api/content/blog/a", &e))
}

func TestHandleStatus(t *testing.T) {
	h := newRouter(&stubProvider{snap: testSnapshot(), ok: true})

	var resp StatusResponse
	require.Equal(t, http.StatusOK, get(t, h, "/api/content/status", &resp))
	assert.Equal(t, "2025.03.01", resp.Meta.Version)
	assert.Equal(t, "abc123", resp.Meta.SHA256)
	assert.Equal(t, content.SourceS3, resp.Meta.Source)
	assert.True(t, resp.Meta.Signed)
	assert.Equal(t, map[string]int{"blog": 4, "work": 1}, resp.Sections)
	assert.True(t, resp.LoadedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, resp.ServerTime.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))

	partial := newRouter(&stubProvider{snap: &content.Snapshot{FS: fstest.MapFS{
		"blog/posts/a.mdx": file("title: A", "x"),
	}}, ok: true})
	require.Equal(t, http.StatusOK, get(t, partial, "/api/content/status", &resp))
	assert.Equal(t, map[string]int{"blog": 1, "work": 0}, resp.Sections)

	var e errorResponse
	assert.Equal(t, http.StatusServiceUnavailable, get(t, newRouter(&stubProvider{}), "/api/content/status", &e))
}
