package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lorad/internal/inference"
	"lorad/pkg/types"
)

const readyProbeTimeout = 2 * time.Second

// Manager is the model session manager. One Manager owns the relationship
// with one inference service; nothing else may load or delete models there.
type Manager struct {
	// mu guards the session fields below for reads. Writes additionally
	// require holding the swap lock.
	mu              sync.RWMutex
	state           State
	active          string
	activeComposite bool
	pending         *types.ModelRef
	err             string
	swaps           uint64
	swapFailures    uint64

	// swapCh is the swap lock: a single slot, so waiting can honour a context.
	swapCh chan struct{}

	store          AdapterStore
	client         inference.Client
	defaultModel   string
	maxTokens      int
	unloadPrevious bool
	log            zerolog.Logger
	publisher      EventPublisher

	bg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	startTime time.Time
}

// New builds a Manager with package defaults for everything but its
// collaborators.
func New(store AdapterStore, client inference.Client, defaultModel string) *Manager {
	return NewWithConfig(ManagerConfig{
		Store:          store,
		Client:         client,
		DefaultModel:   defaultModel,
		UnloadPrevious: true,
		Logger:         zerolog.Nop(),
	})
}

// SetEventPublisher installs an observer for lifecycle events.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.publisher = p
}

// DefaultModel returns the configured default base model.
func (m *Manager) DefaultModel() string { return m.defaultModel }

// Ready returns nil while the manager is open and the inference service
// answers a model listing. Session state is not consulted: a failed swap
// leaves the session idle and the next request starts from scratch.
func (m *Manager) Ready(ctx context.Context) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	if m.client == nil {
		return errors.New("no inference client configured")
	}
	ctx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
	defer cancel()
	_, err := m.client.ListModels(ctx)
	return err
}

// ListModels returns the upstream models in upstream order, with the default
// model injected at the front when the upstream does not list it.
func (m *Manager) ListModels(ctx context.Context) ([]types.ModelInfo, error) {
	models, err := m.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if m.defaultModel == "" || nameSet(models)[normalizeName(m.defaultModel)] {
		return models, nil
	}
	out := make([]types.ModelInfo, 0, len(models)+1)
	out = append(out, types.ModelInfo{Name: m.defaultModel})
	return append(out, models...), nil
}

// ListAdapters returns the adapter files known to the store.
func (m *Manager) ListAdapters() ([]types.AdapterInfo, error) {
	if m.store == nil {
		return []types.AdapterInfo{}, nil
	}
	return m.store.List()
}

// Close stops scheduling background cleanup and waits for running cleanup.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.bg.Wait()
	return nil
}

func (m *Manager) nextOpID() string { return uuid.NewString() }

func (m *Manager) publish(name, opID, model string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	m.publisher.Publish(Event{Name: name, OpID: opID, Model: model, Fields: fields})
}

// normalizeName drops the implicit ":latest" tag the upstream appends to
// untagged model names.
func normalizeName(name string) string { return strings.TrimSuffix(name, ":latest") }

func nameSet(models []types.ModelInfo) map[string]bool {
	out := make(map[string]bool, len(models))
	for _, mdl := range models {
		out[normalizeName(mdl.Name)] = true
	}
	return out
}
