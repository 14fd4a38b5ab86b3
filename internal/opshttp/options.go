package opshttp

import (
	"net/http"
	"time"

	"github.com/aleaurre/portfolio-web/internal/health"
)

type Options struct {
	Port            int
	ShutdownTimeout time.Duration

	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// Status serves /-/content, optional
	Status http.Handler

	UseRecoverMW bool
	OnPanic      func() // called for every recovered panic, e.g. to bump a counter
}
