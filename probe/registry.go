// Package probe collects named status snapshots from the components of the
// process for the status endpoints.
package probe

import (
	"encoding/json"
	"errors"
	"sync"
)

// MaxProbes bounds the registry.
const MaxProbes = 16

var (
	ErrFull      = errors.New("probe registry full")
	ErrEmptyName = errors.New("probe name is empty")
)

// Probe describes the current state of one component. The returned value
// must marshal to a JSON object.
type Probe func() any

type entry struct {
	name string
	fn   Probe
}

// Registry is safe for concurrent use. Probes run outside the registry lock,
// so a slow probe does not block registration or other collections.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make([]entry, 0, MaxProbes)}
}

// Register adds a probe. A name that is already registered is shadowed: Call
// finds the first registration and collections report the last.
func (r *Registry) Register(name string, fn Probe) error {
	if name == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= MaxProbes {
		return ErrFull
	}
	r.entries = append(r.entries, entry{name: name, fn: fn})
	return nil
}

// Call runs a single probe by name.
func (r *Registry) Call(name string) (any, bool) {
	r.mu.Lock()
	var fn Probe
	for _, e := range r.entries {
		if e.name == name {
			fn = e.fn
			break
		}
	}
	r.mu.Unlock()

	if fn == nil {
		return nil, false
	}
	return fn(), true
}

// CollectAll runs every probe and returns their results by name.
func (r *Registry) CollectAll() map[string]any {
	return r.CollectWhere(func(string) bool { return true })
}

// CollectWhere runs the probes whose name satisfies keep.
func (r *Registry) CollectWhere(keep func(name string) bool) map[string]any {
	r.mu.Lock()
	snap := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e.name) {
			snap = append(snap, e)
		}
	}
	r.mu.Unlock()

	out := make(map[string]any, len(snap))
	for _, e := range snap {
		out[e.name] = e.fn()
	}
	return out
}

// JSON returns CollectAll serialized.
func (r *Registry) JSON() ([]byte, error) {
	return json.Marshal(r.CollectAll())
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
