package capture

import "sync"

// Registry is the set of entity types allowed to produce outbox events.
// Producers register their types at startup; append rejects anything else so
// a typo'd caller fails loudly instead of silently feeding consumers an
// entity they cannot handle.
type Registry struct {
	mu    sync.RWMutex
	types map[string]struct{}
}

// Default entity types carried by the application's write paths.
var defaultEntityTypes = []string{
	"item",
	"task",
	"document",
	"relationship",
	"conversation",
	"message",
	"domain",
	"message_metadata",
}

// NewRegistry returns a registry seeded with the application's entity types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]struct{})}
	for _, t := range defaultEntityTypes {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(entityType string) {
	if entityType == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[entityType] = struct{}{}
}

func (r *Registry) Registered(entityType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[entityType]
	return ok
}
