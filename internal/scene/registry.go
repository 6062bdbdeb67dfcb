package scene

import "fmt"

// Registry maps namespace -> identifier -> handle and remembers creation order.
// It is owned by a single client and needs no locking.
type Registry struct {
	nodes map[Namespace]map[string]Handle
	order map[Namespace][]string
}

func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[Namespace]map[string]Handle),
		order: make(map[Namespace][]string),
	}
}

// Add records id in ns. Registering an id twice is a protocol violation.
func (r *Registry) Add(ns Namespace, id string, h Handle) error {
	m, ok := r.nodes[ns]
	if !ok {
		m = make(map[string]Handle)
		r.nodes[ns] = m
	}
	if _, exists := m[id]; exists {
		return fmt.Errorf("%w: %s/%q", ErrDuplicateID, ns, id)
	}
	m[id] = h
	r.order[ns] = append(r.order[ns], id)
	return nil
}

func (r *Registry) Lookup(ns Namespace, id string) (Handle, bool) {
	h, ok := r.nodes[ns][id]
	return h, ok
}

// IDs returns the identifiers of ns in creation order.
func (r *Registry) IDs(ns Namespace) []string {
	out := make([]string, len(r.order[ns]))
	copy(out, r.order[ns])
	return out
}

func (r *Registry) Len(ns Namespace) int {
	return len(r.nodes[ns])
}

func (r *Registry) Clear(ns Namespace) {
	delete(r.nodes, ns)
	delete(r.order, ns)
}

func (r *Registry) ClearAll() {
	clear(r.nodes)
	clear(r.order)
}
