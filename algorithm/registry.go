package algorithm

import "fmt"

// Registry maps identifiers to specs, preserving declaration order.
// It is populated once at startup and is not safe for concurrent Register
// calls.
type Registry struct {
	specs map[string]Spec
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds spec. Each identifier may be registered once.
func (r *Registry) Register(spec Spec) error {
	if spec.ID == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidSpec)
	}
	if spec.Backend == nil {
		return fmt.Errorf("%w: %q has no backend", ErrInvalidSpec, spec.ID)
	}

	if _, ok := r.specs[spec.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAlgorithm, spec.ID)
	}

	r.specs[spec.ID] = spec
	r.order = append(r.order, spec.ID)

	return nil
}

// Resolve returns the spec registered under id.
func (r *Registry) Resolve(id string) (Spec, error) {
	spec, ok := r.specs[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, id)
	}

	return spec, nil
}

// IDs returns the registered identifiers in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)

	return ids
}

// Len returns the number of registered algorithms.
func (r *Registry) Len() int {
	return len(r.order)
}
