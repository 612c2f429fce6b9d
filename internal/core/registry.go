package core

import (
	"errors"
	"fmt"
	"sync"
)

// entry is the barrier state of one started network.
type entry struct {
	server   Server
	closed   bool
	released bool
}

// Registry tracks the instances created through it. It enforces the
// instance cap and releases networks once every registered instance has
// requested closure.
//
// Entries are never removed: a Registry serves one test run.
type Registry struct {
	cfg RegistryConfig

	mu       sync.Mutex
	reserved map[string]struct{} // ids holding a capacity slot
	entries  map[string]*entry
	order    []string // registration order, for deterministic release
}

// NewRegistry creates a Registry. Panics if cfg fails validation.
func NewRegistry(cfg RegistryConfig) *Registry {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("chainenv: invalid registry config: %v", err))
	}
	return &Registry{
		cfg:      cfg,
		reserved: make(map[string]struct{}),
		entries:  make(map[string]*entry),
	}
}

// NewInstance reserves capacity, allocates a port and a unique network id,
// and starts the instance pipeline in the background. It fails with
// ErrCapacityExceeded, without running any stage, when MaxInstances
// instances are already open.
func (r *Registry) NewInstance(cfg InstanceConfig, tools Toolchain) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("chainenv: invalid instance config: %v", err))
	}
	if err := tools.Validate(); err != nil {
		panic(fmt.Sprintf("chainenv: invalid toolchain: %v", err))
	}

	id, err := r.reserve()
	if err != nil {
		return nil, err
	}

	inst := NewInstance(NewInstanceParams{
		ID:       id,
		Port:     r.cfg.Allocator.NextPort(),
		Registry: r,
		Tools:    tools,
		Config:   cfg,
	})
	inst.start()
	return inst, nil
}

// reserve takes a capacity slot under a freshly allocated network id.
func (r *Registry) reserve() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.MaxInstances > 0 && len(r.reserved) >= r.cfg.MaxInstances {
		return "", fmt.Errorf("%w: limit is %d", ErrCapacityExceeded, r.cfg.MaxInstances)
	}
	id, err := r.cfg.Allocator.NewNetworkID()
	if err != nil {
		return "", fmt.Errorf("allocate network id: %w", err)
	}
	r.reserved[id] = struct{}{}
	return id, nil
}

// register records a started network as open.
func (r *Registry) register(id string, srv Server) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		panic("chainenv: network " + id + " registered twice")
	}
	r.entries[id] = &entry{server: srv}
	r.order = append(r.order, id)
}

// releaseNow releases id's network immediately, ahead of the barrier. Used
// when a pipeline fails after its network started. The entry stays open
// until the instance requests closure.
func (r *Registry) releaseNow(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.released {
		r.mu.Unlock()
		return nil
	}
	e.released = true
	srv := e.server
	r.mu.Unlock()

	if err := srv.Release(); err != nil {
		return fmt.Errorf("release network %s: %w", id, err)
	}
	return nil
}

// RequestClose marks id closed and frees its capacity slot. If every entry
// is then closed, and no instance still holds a slot, each network not yet
// released is released exactly once, outside the lock, and the joined
// release errors are returned. An instance whose network has not started yet
// holds its slot, so it defers the release like an open network does.
// Repeated calls are no-ops.
func (r *Registry) RequestClose(id string) error {
	r.mu.Lock()
	delete(r.reserved, id)

	if e, ok := r.entries[id]; ok {
		e.closed = true
	}

	if len(r.reserved) > 0 {
		r.mu.Unlock()
		Logger().Debug("network release deferred until all instances close", "network", id)
		return nil
	}
	for _, other := range r.entries {
		if !other.closed {
			r.mu.Unlock()
			Logger().Debug("network release deferred until all instances close", "network", id)
			return nil
		}
	}

	type pending struct {
		id     string
		server Server
	}
	var toRelease []pending
	for _, key := range r.order {
		if other := r.entries[key]; !other.released {
			other.released = true
			toRelease = append(toRelease, pending{id: key, server: other.server})
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, p := range toRelease {
		Logger().Debug("releasing network", "network", p.id)
		if err := p.server.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release network %s: %w", p.id, err))
		}
	}
	return errors.Join(errs...)
}

// Stats is a snapshot of registry state.
type Stats struct {
	Reserved int // instances holding a capacity slot
	Networks int // networks ever registered
	Open     int // registered networks not yet closed
	Released int // networks released
}

// Stats returns a snapshot of the registry state.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Reserved: len(r.reserved), Networks: len(r.entries)}
	for _, e := range r.entries {
		if !e.closed {
			s.Open++
		}
		if e.released {
			s.Released++
		}
	}
	return s
}
