// File: sigbridge/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sigbridge

import (
	"sync"

	"github.com/momentics/hioload-proc/api"
)

// Registry enforces single ownership of each OS signal's handler slot.
// The process has one mutable handler table per signal; scoped claims with
// deterministic restoration keep teardown explicit instead of relying on
// process-exit cleanup.
type Registry struct {
	mu     sync.Mutex
	owners map[string]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]any)}
}

// DefaultRegistry guards the real process-wide signal table.
var DefaultRegistry = NewRegistry()

// Claim records owner as the holder of the named signal and returns a
// restoration guard. Fails with api.ErrHandlerConflict while another claim
// is outstanding.
func (r *Registry) Claim(name string, owner any) (*Restore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.owners[name]; taken {
		return nil, api.ErrHandlerConflict
	}
	r.owners[name] = owner
	return &Restore{registry: r, name: name}, nil
}

// Restore is the scoped release handle returned by Claim.
type Restore struct {
	registry *Registry
	name     string
	once     sync.Once
}

// Release returns the signal slot to its previous owner. Idempotent.
func (g *Restore) Release() {
	g.once.Do(func() {
		g.registry.mu.Lock()
		delete(g.registry.owners, g.name)
		g.registry.mu.Unlock()
	})
}
