package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/crdt"
	"github.com/okteva/conclave/internal/domain"
	"github.com/okteva/conclave/internal/media"
)

// Registry is the process-wide room map. Rooms are created lazily on first
// join and destroyed when they empty. Exactly one Room exists per id at any
// time; concurrent creation requests for the same unseen id all observe the
// first caller's Room.
type Registry struct {
	pool  *media.WorkerPool
	docs  crdt.Engine
	store *SnapshotStore

	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry
}

// roomEntry decouples room construction from the registry lock: the map
// slot is claimed synchronously, the engine router call runs inside the
// entry's once. A stalled engine call therefore never blocks other rooms.
type roomEntry struct {
	once sync.Once
	room *Room
	err  error
}

func NewRegistry(pool *media.WorkerPool, docs crdt.Engine, store *SnapshotStore) *Registry {
	return &Registry{
		pool:  pool,
		docs:  docs,
		store: store,
		rooms: make(map[domain.RoomID]*roomEntry),
	}
}

// GetOrCreate returns the room for id, creating it on a worker acquired from
// the pool if this is the first join. Creation provisions the default
// document rooms.
func (g *Registry) GetOrCreate(id domain.RoomID) (*Room, error) {
	g.mu.Lock()
	e, ok := g.rooms[id]
	if !ok {
		e = &roomEntry{}
		g.rooms[id] = e
	}
	g.mu.Unlock()

	e.once.Do(func() {
		worker := g.pool.Acquire()
		router, err := worker.CreateRouter(media.DefaultCodecs())
		if err != nil {
			e.err = fmt.Errorf("create router: %w", err)
			return
		}
		room := NewRoom(id, router, g.docs)
		room.provisionDefaultDocuments()
		e.room = room
		log.Info().Str("module", "core.registry").Str("room", string(id)).
			Str("worker", worker.ID()).Msg("room created")
	})

	if e.err != nil {
		// Drop the failed entry so a later join can retry the creation.
		g.mu.Lock()
		if g.rooms[id] == e {
			delete(g.rooms, id)
		}
		g.mu.Unlock()
		return nil, e.err
	}
	return e.room, nil
}

// Get returns the room or ErrRoomNotFound.
func (g *Registry) Get(id domain.RoomID) (*Room, error) {
	g.mu.RLock()
	e, ok := g.rooms[id]
	g.mu.RUnlock()
	if !ok || e.room == nil {
		return nil, fmt.Errorf("room %s: %w", id, domain.ErrRoomNotFound)
	}
	return e.room, nil
}

// Destroy seals the room, persists every document room to durable storage
// and removes it. Destroying an absent room is a no-op; a room that gained a
// peer since the emptiness check is left alone, preserving the invariant
// that a room is removed only after all its sessions are gone.
//
// The sealed room comes off the map before any disk I/O, so a concurrent
// join creates a fresh room immediately instead of waiting out the
// persistence window. A persistence failure loses the snapshot, never the
// room id.
func (g *Registry) Destroy(id domain.RoomID) error {
	g.mu.RLock()
	e, ok := g.rooms[id]
	g.mu.RUnlock()
	if !ok || e.room == nil {
		return nil
	}
	room := e.room

	if !room.sealEmpty() {
		return nil
	}

	g.mu.Lock()
	if g.rooms[id] == e {
		delete(g.rooms, id)
	}
	g.mu.Unlock()

	var persistErr error
	snaps, err := room.DocumentsSnapshot()
	if err != nil {
		persistErr = fmt.Errorf("snapshot room %s: %w", id, err)
	} else {
		for _, snap := range snaps {
			if _, err := g.store.Save(id, snap); err != nil {
				persistErr = fmt.Errorf("persist room %s: %w", id, err)
				break
			}
		}
	}

	room.router.Close()
	if persistErr != nil {
		log.Error().Err(persistErr).Str("module", "core.registry").
			Str("room", string(id)).Msg("documents lost on teardown")
		return persistErr
	}
	log.Info().Str("module", "core.registry").Str("room", string(id)).
		Int("documents", len(snaps)).Msg("room destroyed")
	return nil
}

// sealEmpty atomically marks the room closed if it has no peers left.
// Returns false when the room already closed or a peer joined meanwhile.
func (r *Room) sealEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.peers) > 0 {
		return false
	}
	r.closed = true
	return true
}

// Shutdown persists every live room's documents and releases all routers.
// Called once on process exit; per-room Destroy handles the normal path.
func (g *Registry) Shutdown() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for id, e := range g.rooms {
		if e.room != nil {
			rooms = append(rooms, e.room)
		}
		delete(g.rooms, id)
	}
	g.mu.Unlock()

	for _, room := range rooms {
		snaps, err := room.DocumentsSnapshot()
		if err != nil {
			log.Error().Err(err).Str("module", "core.registry").
				Str("room", string(room.ID())).Msg("snapshot on shutdown")
		}
		for _, snap := range snaps {
			if _, err := g.store.Save(room.ID(), snap); err != nil {
				log.Error().Err(err).Str("module", "core.registry").
					Str("room", string(room.ID())).Msg("persist on shutdown")
			}
		}
		room.shutdown()
	}
}

// RoomStats is one room's line in the stats report.
type RoomStats struct {
	ID          domain.RoomID `json:"room_id"`
	ClientCount int           `json:"client_count"`
	LastSaved   time.Time     `json:"last_saved"`
}

type Stats struct {
	RoomCount   int         `json:"room_count"`
	ClientCount int         `json:"client_count"`
	Rooms       []RoomStats `json:"rooms"`
}

// Stats is read-only introspection over the live rooms.
func (g *Registry) Stats() Stats {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, e := range g.rooms {
		if e.room != nil {
			rooms = append(rooms, e.room)
		}
	}
	g.mu.RUnlock()

	st := Stats{Rooms: make([]RoomStats, 0, len(rooms))}
	for _, r := range rooms {
		peers := r.PeerCount()
		st.RoomCount++
		st.ClientCount += peers
		st.Rooms = append(st.Rooms, RoomStats{
			ID:          r.ID(),
			ClientCount: peers,
			LastSaved:   r.LastActivity(),
		})
	}
	sort.Slice(st.Rooms, func(i, j int) bool { return st.Rooms[i].ID < st.Rooms[j].ID })
	return st
}
