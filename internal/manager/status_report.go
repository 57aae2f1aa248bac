package manager

import (
	"time"

	"lorad/pkg/types"
)

// Snapshot returns a read-only view of the session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, ActiveModel: m.active, ActiveComposite: m.activeComposite, Err: m.err}
	if m.pending != nil {
		p := *m.pending
		s.Pending = &p
	}
	return s
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	s := m.Snapshot()
	m.mu.RLock()
	swaps, failures := m.swaps, m.swapFailures
	m.mu.RUnlock()
	now := time.Now()
	return types.StatusResponse{
		State:             string(s.State),
		ActiveModel:       s.ActiveModel,
		ActiveComposite:   s.ActiveComposite,
		PendingSwap:       s.Pending,
		LastError:         s.Err,
		SwapsTotal:        swaps,
		SwapFailuresTotal: failures,
		UptimeSeconds:     int64(now.Sub(m.startTime) / time.Second),
		ServerTimeUnix:    now.Unix(),
	}
}
