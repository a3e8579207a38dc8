package app

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/core"
	"github.com/okteva/conclave/internal/domain"
	"github.com/okteva/conclave/internal/media"
)

// joinAttempts caps how often Join retries when it keeps losing the race
// against a concurrent room teardown.
const joinAttempts = 16

// Orchestrator ties the room registry to the connection registry. Every
// signaling operation lands here; lookup failures come back as domain errors
// for the adapter to surface, never as a crash.
type Orchestrator struct {
	Rooms    *core.Registry
	Sessions *SessionRegistry
}

// JoinResult is everything a newly joined peer needs: the room's codec
// capabilities, the producers already live in the room, and the serialized
// state of every document room.
type JoinResult struct {
	Capabilities []media.CodecCapability `json:"capabilities"`
	Producers    []core.ProducerInfo     `json:"existing_producers"`
	Documents    []core.DocumentSnapshot `json:"documents"`
}

// Join resolves or creates the room and adds the peer to it. Rejoining the
// current room is idempotent; joining a different room leaves the old one
// first.
func (o *Orchestrator) Join(peer domain.PeerID, roomID domain.RoomID) (JoinResult, error) {
	if cur, ok := o.Sessions.RoomOf(peer); ok && cur != roomID {
		o.leaveRoom(peer, cur)
	}

	var room *core.Room
	for attempt := 0; ; attempt++ {
		r, err := o.Rooms.GetOrCreate(roomID)
		if err != nil {
			return JoinResult{}, err
		}
		// AddPeer fails only when the room emptied and is being torn down
		// under us; the registry replaces the sealed entry almost
		// immediately, so a short bounded retry is enough.
		if r.AddPeer(peer) {
			room = r
			break
		}
		if attempt >= joinAttempts {
			return JoinResult{}, fmt.Errorf("join room %s: torn down on every attempt", roomID)
		}
		runtime.Gosched()
	}
	o.Sessions.SetRoom(peer, roomID)

	docs, err := room.DocumentsSnapshot()
	if err != nil {
		return JoinResult{}, fmt.Errorf("join room %s: %w", roomID, err)
	}
	return JoinResult{
		Capabilities: room.Capabilities(),
		Producers:    room.ProducersSnapshot(peer),
		Documents:    docs,
	}, nil
}

func (o *Orchestrator) CreateTransport(peer domain.PeerID, roomID domain.RoomID,
	direction media.Direction) (media.TransportDescriptor, error) {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return media.TransportDescriptor{}, err
	}
	return room.CreateTransport(peer, direction)
}

func (o *Orchestrator) ConnectTransport(peer domain.PeerID, roomID domain.RoomID,
	transport domain.TransportID, params media.HandshakeParams) error {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return err
	}
	return room.ConnectTransport(peer, transport, params)
}

// Produce publishes a stream; the adapter broadcasts the returned info as a
// "new producer" notification to everyone else in the room.
func (o *Orchestrator) Produce(peer domain.PeerID, roomID domain.RoomID, transport domain.TransportID,
	kind media.Kind, codec media.CodecParameters, appData domain.AppData) (core.ProducerInfo, error) {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return core.ProducerInfo{}, err
	}
	return room.Produce(peer, transport, kind, codec, appData)
}

func (o *Orchestrator) Consume(peer domain.PeerID, roomID domain.RoomID, transport domain.TransportID,
	producer domain.ProducerID, caps []media.CodecCapability) (core.ConsumerDescriptor, error) {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return core.ConsumerDescriptor{}, err
	}
	return room.Consume(peer, transport, producer, caps)
}

func (o *Orchestrator) ResumeConsumer(peer domain.PeerID, roomID domain.RoomID, consumer domain.ConsumerID) error {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return err
	}
	return room.ResumeConsumer(peer, consumer)
}

// CloseProducer closes the stream; the adapter broadcasts "producer closed".
func (o *Orchestrator) CloseProducer(peer domain.PeerID, roomID domain.RoomID,
	producer domain.ProducerID) (core.ProducerInfo, error) {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return core.ProducerInfo{}, err
	}
	return room.CloseProducer(peer, producer)
}

// Disconnect tears down everything the connection owns. If its room empties,
// the room's documents are persisted and the room is disposed. Returns the
// room id so the adapter can broadcast "peer left" to the remaining members.
func (o *Orchestrator) Disconnect(peer domain.PeerID) (domain.RoomID, bool) {
	roomID, ok := o.Sessions.RoomOf(peer)
	o.Sessions.Unbind(peer)
	if !ok {
		return "", false
	}
	o.teardownPeer(peer, roomID)
	return roomID, true
}

// leaveRoom is Disconnect minus the connection teardown, used when a live
// connection switches rooms.
func (o *Orchestrator) leaveRoom(peer domain.PeerID, roomID domain.RoomID) {
	o.Sessions.ClearRoom(peer)
	o.teardownPeer(peer, roomID)
}

func (o *Orchestrator) teardownPeer(peer domain.PeerID, roomID domain.RoomID) {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return
	}
	_, empty := room.RemovePeer(peer)
	if empty {
		if err := o.Rooms.Destroy(roomID); err != nil {
			log.Error().Err(err).Str("module", "app.orchestrator").
				Str("room", string(roomID)).Msg("destroy room")
		}
	}
}

func (o *Orchestrator) Stats() core.Stats {
	return o.Rooms.Stats()
}
