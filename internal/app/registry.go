package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/domain"
)

// SignalConn abstracts the signaling transport endpoint of one connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	TrySend([]byte) error
	Close()
}

type sessionEntry struct {
	Room   domain.RoomID
	Conn   SignalConn
	Cancel context.CancelFunc
}

// SessionRegistry is the side index from connection id to its signaling
// endpoint and the room it has joined. It makes disconnect O(1) instead of
// scanning all rooms, and resolves bare "this client's room" lookups.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[domain.PeerID]*sessionEntry
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[domain.PeerID]*sessionEntry)}
}

// Bind registers a live connection before it joins any room.
func (r *SessionRegistry) Bind(peer domain.PeerID, conn SignalConn, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[peer] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Msg("bound connection")
}

func (r *SessionRegistry) Conn(peer domain.PeerID) (SignalConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[peer]; ok {
		return e.Conn, true
	}
	return nil, false
}

// SetRoom records which room the connection has joined.
func (r *SessionRegistry) SetRoom(peer domain.PeerID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[peer]
	if !ok {
		return false
	}
	e.Room = room
	return true
}

// RoomOf resolves the connection's current room, if any.
func (r *SessionRegistry) RoomOf(peer domain.PeerID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[peer]
	if !ok || e.Room == "" {
		return "", false
	}
	return e.Room, true
}

func (r *SessionRegistry) ClearRoom(peer domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[peer]; ok {
		e.Room = ""
	}
}

// Unbind drops the connection entirely.
func (r *SessionRegistry) Unbind(peer domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, peer)
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Msg("unbound connection")
}

// MemberConn pairs a room member's id with its signaling endpoint.
type MemberConn struct {
	Peer domain.PeerID
	Conn SignalConn
}

// MembersOfRoom snapshots the signaling endpoints of everyone in a room.
func (r *SessionRegistry) MembersOfRoom(room domain.RoomID) []MemberConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberConn, 0, len(r.sessions))
	for peer, e := range r.sessions {
		if e.Room == room {
			out = append(out, MemberConn{Peer: peer, Conn: e.Conn})
		}
	}
	return out
}

// Cancel aborts the connection's context, forcing its pumps to exit.
func (r *SessionRegistry) Cancel(peer domain.PeerID) bool {
	r.mu.RLock()
	e, ok := r.sessions[peer]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	return true
}
