package server

import (
	"strings"
	"sync"
)

// Registry is the single source of truth for who is logged in. It maps each
// authenticated session to its username and keeps usernames unique
// regardless of case.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Session]string
	names    map[string]*Session
	reserved string
}

// NewRegistry creates an empty registry. reserved is the server's own name
// and can never be claimed by a client.
func NewRegistry(reserved string) *Registry {
	return &Registry{
		sessions: make(map[*Session]string),
		names:    make(map[string]*Session),
		reserved: foldName(reserved),
	}
}

func foldName(name string) string {
	return strings.ToLower(name)
}

// TryRegister binds username to sess. It fails when the name is empty,
// reserved, or already taken by another session, or when sess is already
// registered. Concurrent calls for the same name admit at most one.
func (r *Registry) TryRegister(sess *Session, username string) bool {
	if sess == nil || username == "" {
		return false
	}
	key := foldName(username)
	if key == r.reserved {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[key]; taken {
		return false
	}
	if _, exists := r.sessions[sess]; exists {
		return false
	}
	r.sessions[sess] = username
	r.names[key] = sess
	sess.username = username
	return true
}

// Unregister removes sess and reports whether it was present.
func (r *Registry) Unregister(sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.sessions[sess]
	if !ok {
		return false
	}
	delete(r.sessions, sess)
	if r.names[foldName(username)] == sess {
		delete(r.names, foldName(username))
	}
	return true
}

// LookupUsername returns the name sess authenticated with.
func (r *Registry) LookupUsername(sess *Session) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	username, ok := r.sessions[sess]
	return username, ok
}

// BroadcastTargets returns a snapshot of every registered session except
// the given one. A nil except returns all sessions.
func (r *Registry) BroadcastTargets(except *Session) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]*Session, 0, len(r.sessions))
	for sess := range r.sessions {
		if sess != except {
			targets = append(targets, sess)
		}
	}
	return targets
}

// Len returns the number of authenticated sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
