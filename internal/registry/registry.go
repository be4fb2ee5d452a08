// Package registry tracks live transport connections: which token each
// connection owns and which broadcast channels it has joined. Membership is
// connection-scoped, so a teacher with several tabs holds several
// memberships in the same channel and each receives every event.
package registry

import (
	"sync"

	"cvlive/pkg/interfaces"
)

// Registry is safe for concurrent use. It holds no business logic; the
// coordinator decides what binding and membership changes mean.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]interfaces.Connection            // connID -> connection
	tokens   map[string]string                           // connID -> bound token
	channels map[string]map[string]interfaces.Connection // channel -> connID -> connection
	joined   map[string]map[string]bool                  // connID -> channel set, for cleanup
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]interfaces.Connection),
		tokens:   make(map[string]string),
		channels: make(map[string]map[string]interfaces.Connection),
		joined:   make(map[string]map[string]bool),
	}
}

// Add registers a connection. Must be called before Bind or JoinChannel.
func (r *Registry) Add(conn interfaces.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Remove drops the connection, its token binding and all channel
// memberships, returning the token that was bound (empty if none). This is
// the only path that releases a binding on disconnect.
func (r *Registry) Remove(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := r.tokens[connID]
	delete(r.tokens, connID)
	delete(r.conns, connID)

	for channel := range r.joined[connID] {
		if members, ok := r.channels[channel]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.channels, channel)
			}
		}
	}
	delete(r.joined, connID)

	return token
}

// Bind records that connID owns token. A connection owns at most one token;
// binding again replaces the previous binding silently, with none of the
// offline effects a real disconnect triggers.
func (r *Registry) Bind(connID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	r.tokens[connID] = token
}

// Unbind removes and returns the token bound to connID.
func (r *Registry) Unbind(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[connID]
	if ok {
		delete(r.tokens, connID)
	}
	return token, ok
}

// Token returns the token bound to connID, if any.
func (r *Registry) Token(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[connID]
	return token, ok
}

// JoinChannel adds connID to a broadcast channel. Joining twice is a no-op.
func (r *Registry) JoinChannel(connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	if r.channels[channel] == nil {
		r.channels[channel] = make(map[string]interfaces.Connection)
	}
	r.channels[channel][connID] = conn
	if r.joined[connID] == nil {
		r.joined[connID] = make(map[string]bool)
	}
	r.joined[connID][channel] = true
}

// ChannelConnections returns the current members of a channel.
func (r *Registry) ChannelConnections(channel string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.channels[channel]
	conns := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	return conns
}

// Stats reports connection and channel counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"connections":  len(r.conns),
		"bound_tokens": len(r.tokens),
		"channels":     len(r.channels),
	}
}
