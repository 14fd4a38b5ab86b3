package content

import (
	"context"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// ReadyErr returns an error if there is no active snapshot
func (m *Manager) ReadyErr() error {
	if _, ok := m.Get(); !ok {
		return xerrors.New("content: no active snapshot")
	}
	return nil
}

// Check lets the manager serve as a readiness probe.
func (m *Manager) Check(context.Context) error { return m.ReadyErr() }
