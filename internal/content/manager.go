package content

import (
	"sync/atomic"
	"time"
)

type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set sets the active snapshot safely
func (m *Manager) Set(s Snapshot) {
	cp := new(Snapshot)
	*cp = s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	m.active.Store(cp)
}

// Get retrieves the active snapshot
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil && s.FS != nil
}

// ContentVersion implements httpmw.ContentInfo
func (m *Manager) ContentVersion() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.Version
	}
	return ""
}

// ContentHash implements httpmw.ContentInfo
func (m *Manager) ContentHash() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.SHA256
	}
	return ""
}

// ContentSource implements httpmw.ContentSourcer
func (m *Manager) ContentSource() string {
	if s := m.active.Load(); s != nil {
		return string(s.Meta.Source)
	}
	return ""
}

func (m *Manager) Source() Source {
	if s := m.active.Load(); s != nil && s.Meta.Source != "" {
		return s.Meta.Source
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}
