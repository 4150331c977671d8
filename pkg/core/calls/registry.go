// Package calls holds the in-memory registry of active calls. The registry is
// rebuilt wholesale from snapshot events and patched incrementally by
// lifecycle events; it never outlives the process.
package calls

import (
	"sync"

	"github.com/pbxlink-go/pbxlink/pkg/core/types"
)

// Registry maps call identifiers to their last-known status. All methods are
// safe for concurrent use. Absence is a normal outcome: Get on an unknown
// identifier reports not-found and Remove of an absent call is a no-op.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]types.Call
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]types.Call)}
}

// ApplySnapshot clears the registry and replaces it with the given records.
// Records without a call identifier are skipped.
func (r *Registry) ApplySnapshot(records []types.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]types.Call, len(records))
	for _, call := range records {
		if call.CallID == "" {
			continue
		}
		r.calls[call.CallID] = call
	}
}

// Upsert creates the call if absent, otherwise merges the non-zero fields of
// the partial record into the existing one.
func (r *Registry) Upsert(id string, partial types.Call) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[id]
	if !ok {
		call = types.Call{CallID: id}
	}
	if partial.Status != "" {
		call.Status = partial.Status
	}
	if partial.Channel != "" {
		call.Channel = partial.Channel
	}
	if partial.Caller != "" {
		call.Caller = partial.Caller
	}
	if partial.Callee != "" {
		call.Callee = partial.Callee
	}
	if partial.Duration != 0 {
		call.Duration = partial.Duration
	}
	r.calls[id] = call
}

// Remove deletes the call if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
}

// Get returns the call and whether it is known.
func (r *Registry) Get(id string) (types.Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	call, ok := r.calls[id]
	return call, ok
}

// List returns a copy of all known calls.
func (r *Registry) List() []types.Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Call, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, call)
	}
	return out
}

// Len returns the number of known calls.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Clear drops every record. Used on dispatcher shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]types.Call)
}
