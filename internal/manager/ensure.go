package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lorad/internal/adapters"
	"lorad/internal/composite"
	"lorad/internal/inference"
	"lorad/pkg/types"
)

// Ensure makes ref the active model, swapping if needed. Requesting the model
// that is already active returns LoadAlreadyLoaded without any upstream call.
//
// Swaps are serialized. Upstream calls made during a swap are detached from
// ctx: a caller that goes away must not abort a swap other callers wait on.
// ctx only bounds the wait for the swap lock.
func (m *Manager) Ensure(ctx context.Context, ref types.ModelRef) (types.LoadResult, error) {
	if ref.BaseModel == "" {
		ref.BaseModel = m.defaultModel
		if ref.BaseModel == "" {
			return types.LoadResult{}, ErrModelRequired
		}
	}

	plan, err := m.resolve(ref)
	if err != nil {
		return types.LoadResult{}, err
	}
	if res, ok := m.fastPath(plan); ok {
		return res, nil
	}

	if err := m.acquireSwap(ctx); err != nil {
		return types.LoadResult{}, err
	}
	defer m.releaseSwap()

	// The adapter may have changed and an equivalent swap may have finished
	// while we waited.
	plan, err = m.resolve(ref)
	if err != nil {
		return types.LoadResult{}, err
	}
	if res, ok := m.fastPath(plan); ok {
		return res, nil
	}
	return m.swap(context.WithoutCancel(ctx), ref, plan)
}

// resolve classifies the adapter and picks the upstream model name to target.
func (m *Manager) resolve(ref types.ModelRef) (swapPlan, error) {
	if !ref.HasAdapter() {
		return swapPlan{target: ref.BaseModel}, nil
	}
	if m.store == nil {
		return swapPlan{}, ErrAdapterNotFound(ref.Adapter.Name)
	}
	cls, err := m.store.Classify(ref.Adapter.Name)
	if err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return swapPlan{}, adapterNotFoundError{name: ref.Adapter.Name, err: err}
		}
		return swapPlan{}, fmt.Errorf("classify adapter %s: %w", ref.Adapter.Name, err)
	}
	switch cls {
	case adapters.Real:
		d := composite.Build(ref.BaseModel, ref.Adapter, m.store.ResolvePath(ref.Adapter.Name))
		d.LocalPath = m.store.LocalPath(ref.Adapter.Name)
		return swapPlan{target: d.Name, composite: &d}, nil
	case adapters.Placeholder:
		return swapPlan{target: ref.BaseModel, degraded: true}, nil
	default:
		return swapPlan{}, ErrAdapterNotFound(ref.Adapter.Name)
	}
}

// fastPath reports success when plan targets the active model.
func (m *Manager) fastPath(plan swapPlan) (types.LoadResult, bool) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if active == "" || active != plan.target {
		return types.LoadResult{}, false
	}
	fastPathTotal.Inc()
	return plan.result(types.LoadAlreadyLoaded), true
}

func (m *Manager) acquireSwap(ctx context.Context) error {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.swapCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) releaseSwap() { <-m.swapCh }

// swap performs create -> confirm for plan. The swap lock must be held.
func (m *Manager) swap(ctx context.Context, ref types.ModelRef, plan swapPlan) (types.LoadResult, error) {
	startTs := time.Now()
	opID := m.nextOpID()

	m.mu.Lock()
	prev, prevComposite := m.active, m.activeComposite
	pending := ref
	m.pending = &pending
	m.state = StateLoading
	m.mu.Unlock()

	m.log.Info().Str("event", "swap_start").Str("op", opID).Str("target", plan.target).Str("previous", prev).Msg("manager")
	m.publish("swap_start", opID, plan.target, map[string]any{"previous": prev, "base": ref.BaseModel, "adapter": ref.Adapter.Name})
	if plan.degraded {
		m.log.Warn().Str("event", "adapter_placeholder").Str("op", opID).Str("adapter", ref.Adapter.Name).Str("base", ref.BaseModel).Msg("manager")
		m.publish("adapter_degraded", opID, plan.target, map[string]any{"adapter": ref.Adapter.Name})
	}

	var upstream map[string]bool
	fail := func(stage string, cause error) (types.LoadResult, error) {
		err := swapFailedError{target: plan.target, stage: stage, err: cause}
		m.mu.Lock()
		m.pending = nil
		m.err = err.Error()
		m.swapFailures++
		if prev != "" && upstream != nil && !upstream[normalizeName(prev)] {
			// The previous model is gone upstream; the next request must
			// resolve from scratch.
			m.active, m.activeComposite = "", false
			m.log.Warn().Str("event", "active_cleared").Str("op", opID).Str("model", prev).Msg("manager")
		}
		if m.active == "" {
			m.state = StateIdle
		} else {
			m.state = StateReady
		}
		m.mu.Unlock()
		swapsTotal.WithLabelValues("failed").Inc()
		swapDuration.Observe(time.Since(startTs).Seconds())
		m.log.Error().Str("event", "swap_failed").Str("op", opID).Str("stage", stage).Str("target", plan.target).Err(cause).Msg("manager")
		m.publish("swap_failed", opID, plan.target, map[string]any{"stage": stage, "error": cause.Error()})
		return types.LoadResult{}, err
	}

	created := false
	if plan.composite != nil {
		models, err := m.client.ListModels(ctx)
		if err != nil {
			return fail("list", err)
		}
		upstream = nameSet(models)
		if !upstream[normalizeName(plan.target)] {
			if err := m.client.CreateComposite(ctx, *plan.composite); err != nil {
				return fail("create", err)
			}
			created = true
			upstream[normalizeName(plan.target)] = true
			m.publish("composite_created", opID, plan.target, map[string]any{"base": plan.composite.BaseModel, "adapter_path": plan.composite.AdapterPath})
		}
	}

	if err := m.client.ConfirmLoaded(ctx, plan.target); err != nil {
		if created {
			m.deleteComposite(ctx, opID, plan.target)
			delete(upstream, normalizeName(plan.target))
		}
		return fail("confirm", err)
	}

	m.mu.Lock()
	m.active = plan.target
	m.activeComposite = plan.composite != nil
	m.pending = nil
	m.state = StateReady
	m.err = ""
	m.swaps++
	m.mu.Unlock()

	swapsTotal.WithLabelValues("success").Inc()
	swapDuration.Observe(time.Since(startTs).Seconds())
	m.log.Info().Str("event", "swap_ready").Str("op", opID).Str("model", plan.target).Bool("composite", plan.composite != nil).Dur("dur", time.Since(startTs)).Msg("manager")
	m.publish("swap_ready", opID, plan.target, map[string]any{"dur_ms": int(time.Since(startTs) / time.Millisecond), "created": created})

	if prev != "" && prev != plan.target {
		m.scheduleHygiene(opID, prev, prevComposite)
	}
	return plan.result(types.LoadSuccess), nil
}

// deleteComposite removes a transient composite. Failures are logged, never
// returned: they must not mask the error that triggered the cleanup.
func (m *Manager) deleteComposite(ctx context.Context, opID, name string) {
	err := m.client.DeleteModel(ctx, name)
	if err == nil || inference.IsNotFound(err) {
		m.log.Info().Str("event", "composite_deleted").Str("op", opID).Str("model", name).Msg("manager")
		m.publish("composite_deleted", opID, name, nil)
		return
	}
	cleanupFailuresTotal.WithLabelValues("delete").Inc()
	m.log.Warn().Str("event", "cleanup_failed").Str("op", opID).Str("model", name).Err(err).Msg("manager")
	m.publish("cleanup_failed", opID, name, map[string]any{"op": "delete", "error": err.Error()})
}
