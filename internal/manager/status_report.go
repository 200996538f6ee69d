package manager

import (
	"time"

	"zmapd/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, ZMaps: len(m.zmaps), Err: m.err}
	for _, z := range m.zmaps {
		s.Views += len(z.views)
	}
	return s
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		State:                   string(m.state),
		LastError:               m.err,
		UptimeSeconds:           int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix:          now.Unix(),
		LoadsTotal:              m.loadsTotal,
		ConnectionFailuresTotal: m.failuresTotal,
		Sources:                 append([]types.Source{}, m.sources...),
		ZMaps:                   make([]types.ZMapStatus, 0, len(m.order)),
	}
	for _, id := range m.order {
		z := m.zmaps[id]
		zs := types.ZMapStatus{
			ID:          z.ID,
			State:       string(z.State),
			CreatedUnix: z.Created.Unix(),
			Views:       make([]types.ViewStatus, 0, len(z.views)),
		}
		for _, v := range z.views {
			zs.Views = append(zs.Views, v.Status())
		}
		resp.ZMaps = append(resp.ZMaps, zs)
	}
	return resp
}
