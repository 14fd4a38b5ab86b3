// Package contentapi serves the content listing as JSON under /api/content.
package contentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
)

// SnapshotProvider defines the interface for getting content snapshots
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

// sections maps the public section name to its directory in a content root
var sections = map[string]string{
	"blog": content.BlogDir,
	"work": content.WorkDir,
}

// API implements the content API endpoints
type API struct {
	content SnapshotProvider
	lister  content.Lister
	logger  log.Logger
	now     func() time.Time
}

func NewAPI(cp SnapshotProvider, lister content.Lister, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		content: cp,
		lister:  lister,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes attaches content endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/content/status", api.HandleStatus)
	r.Get("/api/content/{section}", api.HandleList)
	r.Get("/api/content/{section}/{slug}", api.HandleItem)
}

// ListResponse is one page of a section. Total counts the whole section,
// before exclude and range are applied.
type ListResponse struct {
	Section string         `json:"section"`
	Total   int            `json:"total"`
	Items   []content.Item `json:"items"`
}

type StatusResponse struct {
	Meta       content.Meta   `json:"meta"`
	LoadedAt   time.Time      `json:"loaded_at"`
	ServerTime time.Time      `json:"server_time"`
	Sections   map[string]int `json:"sections"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleList serves a section after exclude -> sort -> range.
// Query: exclude (comma separated or repeated), start, end.
func (api *API) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name := chi.URLParam(r, "section")
	dir, ok := sections[name]
	if !ok {
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "unknown section"})
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	snap, ok := api.content.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "no content loaded"})
		return
	}

	items, err := api.lister.List(ctx, snap.FS, dir)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, ListResponse{
		Section: name,
		Total:   len(items),
		Items:   content.Select(items, q),
	})
}

// HandleItem serves one item by slug.
func (api *API) HandleItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dir, ok := sections[chi.URLParam(r, "section")]
	if !ok {
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "unknown section"})
		return
	}

	snap, ok := api.content.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "no content loaded"})
		return
	}

	it, err := api.lister.Read(ctx, snap.FS, dir, chi.URLParam(r, "slug"))
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, it)
}

// HandleStatus serves the active snapshot meta and per-section counts.
func (api *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, ok := api.content.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "no content loaded"})
		return
	}

	counts := make(map[string]int, len(sections))
	for name, dir := range sections {
		items, err := api.lister.List(ctx, snap.FS, dir)
		if err != nil {
			// a missing section counts as empty
			if !errors.Is(err, content.ErrNotFound) {
				api.logger.Warn(ctx, "content status: section unreadable", "section", name, "error", err)
			}
			counts[name] = 0
			continue
		}
		counts[name] = len(items)
	}

	api.writeJSON(ctx, w, http.StatusOK, StatusResponse{
		Meta:       snap.Meta,
		LoadedAt:   snap.LoadedAt.Truncate(time.Second),
		ServerTime: api.now().UTC().Truncate(time.Second),
		Sections:   counts,
	})
}

func parseQuery(r *http.Request) (content.Query, error) {
	v := r.URL.Query()

	var q content.Query
	for _, raw := range v["exclude"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Exclude = append(q.Exclude, s)
			}
		}
	}

	var err error
	if q.Range.Start, err = intParam(v.Get("start"), "start"); err != nil {
		return content.Query{}, err
	}
	if q.Range.End, err = intParam(v.Get("end"), "end"); err != nil {
		return content.Query{}, err
	}
	return q, nil
}

func intParam(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func (api *API) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, content.ErrNotFound) {
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	api.logger.Error(ctx, err, "content api failed")
	api.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
