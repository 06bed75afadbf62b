package session

import (
	"github.com/google/uuid"

	"github.com/trezcool/escola/core/cache"
)

// Registry keeps the live sessions of a server, by session ID.
// Sessions expire with the registry cache TTL, counted from their last Touch.
// There is no sweeper: an abandoned session stays in the cache, and in Len,
// until its ID is read again or the cache is cleared. Its remote session is not signed out.
type Registry struct {
	sessions *cache.Cache
	factory  func() *Session
}

func NewRegistry(sessions *cache.Cache, factory func() *Session) *Registry {
	return &Registry{sessions: sessions, factory: factory}
}

// Create registers a new signed-out session.
func (r *Registry) Create() (string, *Session) {
	id := uuid.New().String()
	s := r.factory()
	r.sessions.Set(id, s)
	return id, s
}

func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

// Touch restarts the expiry of session id.
func (r *Registry) Touch(id string) bool {
	s, ok := r.Get(id)
	if ok {
		r.sessions.Set(id, s)
	}
	return ok
}

func (r *Registry) Delete(id string) {
	r.sessions.Invalidate(id)
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}
