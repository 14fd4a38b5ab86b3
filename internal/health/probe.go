// Package health has the liveness and readiness probes behind the
// /-/healthy, /-/ready, /healthz and /readyz endpoints.
package health

import (
	"context"
	"sync/atomic"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// Probe reports nil when healthy and the reason otherwise.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := xerrors.New(reason)
	return func(context.Context) error { return err }
}

// All passes when every non-nil probe passes and reports the first failure.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p != nil {
				if err := p.Check(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// Any passes when one non-nil probe passes. With none passing it reports
// the last failure.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		err := xerrors.New("no healthy probes")
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err = p.Check(ctx); err == nil {
				return nil
			}
		}
		return err
	}
}

// ShutdownGate fails readiness while the server drains so the load
// balancer stops routing to it before listeners close. The zero value is
// open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set starts draining. An empty reason reads as "draining".
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

// Draining reports whether Set was called without a later Clear.
func (g *ShutdownGate) Draining() bool { return g.reason.Load() != nil }

// Probe fails with the drain reason while the gate is set.
func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return xerrors.New(*r)
		}
		return nil
	}
}
