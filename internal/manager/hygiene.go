package manager

import (
	"context"

	"lorad/internal/inference"
)

// scheduleHygiene releases the previously active model in the background:
// composites are deleted, base models are unloaded when configured. The work
// takes the swap lock so it never interleaves with a swap, and is skipped if
// prev became active again in the meantime.
func (m *Manager) scheduleHygiene(opID, prev string, wasComposite bool) {
	if !wasComposite && !m.unloadPrevious {
		return
	}
	select {
	case <-m.done:
		return
	default:
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		select {
		case m.swapCh <- struct{}{}:
		case <-m.done:
			return
		}
		defer m.releaseSwap()

		m.mu.RLock()
		reactivated := m.active == prev
		m.mu.RUnlock()
		if reactivated {
			return
		}
		ctx := context.Background()
		if wasComposite {
			m.deleteComposite(ctx, opID, prev)
			return
		}
		m.unload(ctx, opID, prev)
	}()
}

func (m *Manager) unload(ctx context.Context, opID, name string) {
	if err := m.client.Unload(ctx, name); err != nil && !inference.IsNotFound(err) {
		cleanupFailuresTotal.WithLabelValues("unload").Inc()
		m.log.Warn().Str("event", "cleanup_failed").Str("op", opID).Str("model", name).Err(err).Msg("manager")
		m.publish("cleanup_failed", opID, name, map[string]any{"op": "unload", "error": err.Error()})
		return
	}
	m.log.Debug().Str("event", "unload_done").Str("op", opID).Str("model", name).Msg("manager")
	m.publish("unload_done", opID, name, nil)
}
