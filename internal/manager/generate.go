package manager

import (
	"context"
	"errors"

	"lorad/internal/inference"
	"lorad/pkg/types"
)

// Generate ensures ref is active, then relays every upstream delta to onDelta
// as it arrives. The swap lock is not held while streaming.
//
// If the stream breaks after it started, the deltas already handed to onDelta
// stand and the returned error satisfies IsStreamInterrupted. An error from
// onDelta (the caller went away) stops the stream and is returned unchanged.
func (m *Manager) Generate(ctx context.Context, ref types.ModelRef, prompt string, maxTokens int, onDelta func(types.TextDelta) error) (types.LoadResult, error) {
	res, err := m.Ensure(ctx, ref)
	if err != nil {
		return res, err
	}
	req := inference.GenerateRequest{Model: res.Loaded, Prompt: prompt, MaxTokens: m.tokens(maxTokens)}

	delivered := 0
	var cbErr error
	err = m.client.Generate(ctx, req, func(d types.TextDelta) error {
		if e := onDelta(d); e != nil {
			cbErr = e
			return e
		}
		delivered++
		streamDeltasTotal.Inc()
		return nil
	})
	if err == nil {
		return res, nil
	}
	if cbErr != nil && errors.Is(err, cbErr) {
		return res, err
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	var se *inference.StreamError
	if delivered > 0 || errors.As(err, &se) {
		streamsInterruptedTotal.Inc()
		m.log.Warn().Str("event", "stream_interrupted").Str("model", res.Loaded).Int("delivered", delivered).Err(err).Msg("manager")
		return res, streamInterruptedError{model: res.Loaded, delivered: delivered, err: err}
	}
	m.invalidateIfGone(ctx, res.Loaded, err)
	return res, err
}

// Complete is the single-shot variant of Generate.
func (m *Manager) Complete(ctx context.Context, ref types.ModelRef, prompt string, maxTokens int) (string, types.LoadResult, error) {
	res, err := m.Ensure(ctx, ref)
	if err != nil {
		return "", res, err
	}
	text, err := m.client.GenerateOnce(ctx, inference.GenerateRequest{Model: res.Loaded, Prompt: prompt, MaxTokens: m.tokens(maxTokens)})
	if err != nil {
		m.invalidateIfGone(ctx, res.Loaded, err)
		return "", res, err
	}
	return text, res, nil
}

func (m *Manager) tokens(n int) int {
	if n <= 0 {
		return m.maxTokens
	}
	return n
}

// invalidateIfGone clears the active model when the upstream no longer knows
// it (deleted behind our back), so the next request swaps from scratch. A
// caller that has gone away skips it; the next 404 retries.
func (m *Manager) invalidateIfGone(ctx context.Context, name string, err error) {
	if !inference.IsNotFound(err) {
		return
	}
	select {
	case m.swapCh <- struct{}{}:
	case <-ctx.Done():
		return
	case <-m.done:
		return
	}
	defer m.releaseSwap()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != name {
		return
	}
	m.active, m.activeComposite = "", false
	m.state = StateIdle
	m.log.Warn().Str("event", "active_invalidated").Str("model", name).Err(err).Msg("manager")
	m.publish("active_invalidated", "", name, map[string]any{"error": err.Error()})
}
