package tts

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrEngineNotFound is returned when an engine is not registered.
	ErrEngineNotFound = errors.New("TTS engine not found")
	// ErrEngineExists is returned when trying to register a duplicate engine.
	ErrEngineExists = errors.New("TTS engine already registered")
)

// Registry manages the available TTS engines and routes requests between
// them. It is itself an Engine: a voice such as "edge:en-GB-RyanNeural" goes
// to the edge engine with voice "en-GB-RyanNeural", an unqualified voice goes
// to the default engine unchanged.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	def     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
	}
}

// Register adds an engine. The first engine registered becomes the default.
func (r *Registry) Register(engine Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := engine.Name()
	if _, exists := r.engines[name]; exists {
		return ErrEngineExists
	}
	r.engines[name] = engine
	if r.def == "" {
		r.def = name
	}
	return nil
}

// Get retrieves an engine by name.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, exists := r.engines[name]
	if !exists {
		return nil, ErrEngineNotFound
	}
	return engine, nil
}

// Default returns the default engine.
func (r *Registry) Default() (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.def == "" {
		return nil, ErrEngineNotFound
	}
	return r.engines[r.def], nil
}

// SetDefault sets the default engine by name.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[name]; !exists {
		return ErrEngineNotFound
	}
	r.def = name
	return nil
}

// List returns the registered engine names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name identifies the registry when it is used as an Engine.
func (r *Registry) Name() string {
	return "registry"
}

// Synthesize routes req to the engine named by its voice qualifier, or to
// the default engine.
func (r *Registry) Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error) {
	engine, voice, err := r.route(req.Voice)
	if err != nil {
		return nil, err
	}
	req.Voice = voice
	return engine.Synthesize(ctx, req)
}

func (r *Registry) route(voice string) (Engine, string, error) {
	if name, bare := SplitVoice(voice); name != "" {
		if engine, err := r.Get(name); err == nil {
			return engine, bare, nil
		}
	}
	engine, err := r.Default()
	return engine, voice, err
}
