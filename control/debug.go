// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Probe registry for runtime inspection of engine state.

package control

import (
	"sort"
	"sync"
)

// Probes holds named state reporters.
type Probes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewProbes creates an empty registry.
func NewProbes() *Probes {
	return &Probes{
		probes: make(map[string]func() any),
	}
}

// Register inserts or replaces a named probe.
func (p *Probes) Register(name string, fn func() any) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[name] = fn
}

// Unregister removes a probe.
func (p *Probes) Unregister(name string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.probes, name)
}

// Names lists registered probes in sorted order.
func (p *Probes) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.probes))
	for k := range p.probes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dump runs every probe and returns the results keyed by name. Probes run
// outside the registry lock.
func (p *Probes) Dump() map[string]any {
	p.mu.RLock()
	fns := make(map[string]func() any, len(p.probes))
	for k, fn := range p.probes {
		fns[k] = fn
	}
	p.mu.RUnlock()

	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}
