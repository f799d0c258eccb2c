package plugin

import "sort"

// Params is the parameter bag a handler receives, decoded from the request's
// params object.
type Params map[string]any

// Handler implements one plugin method. A successful return value must be a
// map[string]any (or Params); anything else is reported to the host as a
// handler contract violation. Returned errors become error responses with
// the method name prefixed.
type Handler func(params Params) (any, error)

// Factory builds a plugin's method registry. It runs once per invocation,
// before any input is read.
type Factory func() (*Registry, error)

// Registry maps method names to handlers. It is populated once at startup
// and read for the single exchange of the process lifetime; it is not safe
// for concurrent mutation.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for method. Registering the same method twice
// replaces the earlier handler.
func (r *Registry) Register(method string, h Handler) {
	r.handlers[method] = h
}

// Lookup returns the handler bound to method.
func (r *Registry) Lookup(method string) (Handler, bool) {
	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the registered method names, sorted.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
