package manager

import (
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/inference"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxTokens = 512
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Store  AdapterStore
	Client inference.Client
	// DefaultModel is used when a request names no base model and is always
	// listed by ListModels.
	DefaultModel string
	// DefaultMaxTokens applies when a generation asks for <= 0 tokens.
	DefaultMaxTokens int
	// UnloadPrevious evicts the previously active base model after a swap.
	UnloadPrevious bool
	Logger         zerolog.Logger
	Publisher      EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:          StateIdle,
		store:          cfg.Store,
		client:         cfg.Client,
		defaultModel:   cfg.DefaultModel,
		maxTokens:      cfg.DefaultMaxTokens,
		unloadPrevious: cfg.UnloadPrevious,
		log:            cfg.Logger.With().Str("component", "manager").Logger(),
		publisher:      cfg.Publisher,
		swapCh:         make(chan struct{}, 1),
		done:           make(chan struct{}),
		startTime:      time.Now(),
	}
	if m.maxTokens <= 0 {
		m.maxTokens = defaultMaxTokens
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	return m
}
