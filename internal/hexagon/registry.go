package hexagon

import "sync"

// Registry is the process-wide session cache, keyed by the one-way credential
// hash. Two concurrent requests carrying the same credential pair always end
// up on the same session, so the vendor sees one authentication lifecycle per
// pair instead of one per request. Entries are never evicted; the key-space
// is bounded by the provisioned client population.
type Registry struct {
	ep   Endpoints
	opts []Option

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. opts are applied to every session
// the registry creates.
func NewRegistry(ep Endpoints, opts ...Option) *Registry {
	return &Registry{
		ep:       ep,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for cred, creating and caching it on first
// use. Creation is atomic per credential: concurrent callers observe at most
// one session object.
func (r *Registry) GetOrCreate(cred Credential) *Session {
	key := cred.Hash()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := NewSession(cred, r.ep, r.opts...)
	r.sessions[key] = s
	return s
}

// Len returns the number of cached sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
