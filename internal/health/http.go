package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthzHandler answers liveness: 200 "ok" or 503 with the probe's
// reason. A nil probe is healthy.
func HealthzHandler(p Probe) http.HandlerFunc { return handler(p, "ok") }

// ReadyzHandler answers readiness: 200 "ready" or 503 with the reason.
func ReadyzHandler(p Probe) http.HandlerFunc { return handler(p, "ready") }

func handler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, okBody
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				status, body = http.StatusServiceUnavailable, err.Error()
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte(body + "\n"))
		}
	}
}

// Routes mounts /-/ping, /-/healthy and /-/ready. With Kubernetes set it
// also answers on /healthz and /readyz.
type Routes struct {
	Health     Probe
	Readiness  Probe
	Kubernetes bool
}

func (rt Routes) RegisterRoutes(r chi.Router) {
	mount := func(pattern string, h http.HandlerFunc) {
		r.Get(pattern, h)
		r.Head(pattern, h)
	}
	// the process is up, nothing is checked
	mount("/-/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte("pong\n"))
	})
	live, ready := HealthzHandler(rt.Health), ReadyzHandler(rt.Readiness)
	mount("/-/healthy", live)
	mount("/-/ready", ready)
	if rt.Kubernetes {
		mount("/healthz", live)
		mount("/readyz", ready)
	}
}
