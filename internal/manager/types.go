package manager

import (
	"lorad/internal/adapters"
	"lorad/internal/composite"
	"lorad/pkg/types"
)

// State represents the lifecycle state of the session.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Snapshot is a read-only projection of the session state.
type Snapshot struct {
	State           State
	ActiveModel     string
	ActiveComposite bool
	Pending         *types.ModelRef
	Err             string
}

// AdapterStore is the subset of the adapter store the manager depends on.
type AdapterStore interface {
	Classify(name string) (adapters.Classification, error)
	ResolvePath(name string) string
	LocalPath(name string) string
	List() ([]types.AdapterInfo, error)
}

// swapPlan is the resolved target of a request.
type swapPlan struct {
	target    string
	composite *composite.Descriptor
	degraded  bool
}

func (p swapPlan) result(status types.LoadStatus) types.LoadResult {
	return types.LoadResult{
		Status:    status,
		Loaded:    p.target,
		Degraded:  p.degraded,
		Composite: p.composite != nil,
	}
}
