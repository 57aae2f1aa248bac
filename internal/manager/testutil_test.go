package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"lorad/internal/adapters"
	"lorad/internal/composite"
	"lorad/internal/inference"
	"lorad/pkg/types"
)

// fakeClient is an in-memory inference service. Upstream models live in
// models; every call is counted and mutating calls are tracked for overlap.
type fakeClient struct {
	mu     sync.Mutex
	models []string
	calls  map[string]int
	log    []string

	created []composite.Descriptor

	inFlight    int
	maxInFlight int

	listErr    error
	createErr  error
	confirmErr func(name string) error
	deleteErr  error
	unloadErr  error
	// confirmGate, when set, blocks ConfirmLoaded until closed. confirmEntered
	// receives once per ConfirmLoaded call before blocking.
	confirmGate    chan struct{}
	confirmEntered chan string

	generate func(ctx context.Context, req inference.GenerateRequest, fn inference.DeltaFunc) error
	once     func(req inference.GenerateRequest) (string, error)
}

var _ inference.Client = (*fakeClient)(nil)

func newFakeClient(models ...string) *fakeClient {
	return &fakeClient{models: append([]string(nil), models...), calls: map[string]int{}}
}

func (f *fakeClient) record(op, name string) {
	f.mu.Lock()
	f.calls[op]++
	f.log = append(f.log, op+" "+name)
	f.mu.Unlock()
}

func (f *fakeClient) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
}

func (f *fakeClient) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClient) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	f.calls = map[string]int{}
	f.log = nil
	f.mu.Unlock()
}

func (f *fakeClient) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.models {
		if normalizeName(m) == normalizeName(name) {
			return true
		}
	}
	return false
}

func (f *fakeClient) remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.models[:0]
	for _, m := range f.models {
		if normalizeName(m) != normalizeName(name) {
			out = append(out, m)
		}
	}
	f.models = out
}

func (f *fakeClient) ListModels(ctx context.Context) ([]types.ModelInfo, error) {
	f.record("list", "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.ModelInfo, 0, len(f.models))
	for _, m := range f.models {
		out = append(out, types.ModelInfo{Name: m})
	}
	return out, nil
}

func (f *fakeClient) CreateComposite(ctx context.Context, d composite.Descriptor) error {
	f.enter()
	defer f.leave()
	f.record("create", d.Name)
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	f.models = append(f.models, d.Name+":latest")
	f.created = append(f.created, d)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) DeleteModel(ctx context.Context, name string) error {
	f.enter()
	defer f.leave()
	f.record("delete", name)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if !f.has(name) {
		return &inference.UpstreamError{Op: "delete", StatusCode: 404, Body: "model not found"}
	}
	f.remove(name)
	return nil
}

func (f *fakeClient) ConfirmLoaded(ctx context.Context, name string) error {
	f.enter()
	defer f.leave()
	f.record("confirm", name)
	if f.confirmEntered != nil {
		f.confirmEntered <- name
	}
	if f.confirmGate != nil {
		<-f.confirmGate
	}
	if f.confirmErr != nil {
		if err := f.confirmErr(name); err != nil {
			return err
		}
	}
	if !f.has(name) {
		return &inference.UpstreamError{Op: "confirm", StatusCode: 404, Body: "model not found"}
	}
	return nil
}

func (f *fakeClient) Unload(ctx context.Context, name string) error {
	f.enter()
	defer f.leave()
	f.record("unload", name)
	return f.unloadErr
}

func (f *fakeClient) Generate(ctx context.Context, req inference.GenerateRequest, fn inference.DeltaFunc) error {
	f.record("generate", req.Model)
	if f.generate != nil {
		return f.generate(ctx, req, fn)
	}
	if err := fn(types.TextDelta{Response: "ok"}); err != nil {
		return err
	}
	return fn(types.TextDelta{Done: true})
}

func (f *fakeClient) GenerateOnce(ctx context.Context, req inference.GenerateRequest) (string, error) {
	f.record("generate_once", req.Model)
	if f.once != nil {
		return f.once(req)
	}
	return "answer from " + req.Model, nil
}

// newAdapterStore builds a store whose placeholder threshold is 16 bytes and
// writes the given files with the given sizes.
func newAdapterStore(t *testing.T, files map[string]int) *adapters.Store {
	t.Helper()
	dir := t.TempDir()
	for name, size := range files {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatalf("write adapter: %v", err)
		}
	}
	s, err := adapters.New(dir, "/host/loras", 16)
	if err != nil {
		t.Fatalf("adapters.New: %v", err)
	}
	return s
}

func newTestManager(t *testing.T, store AdapterStore, client *fakeClient, unloadPrevious bool) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	m := NewWithConfig(ManagerConfig{
		Store:          store,
		Client:         client,
		DefaultModel:   "llama3",
		UnloadPrevious: unloadPrevious,
		Logger:         zerolog.Nop(),
		Publisher:      pub,
	})
	t.Cleanup(func() { _ = m.Close() })
	return m, pub
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
