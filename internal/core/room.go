package core

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/crdt"
	"github.com/okteva/conclave/internal/domain"
	"github.com/okteva/conclave/internal/media"
)

// Room is one media-routing domain: the router of its assigned worker, the
// peer sessions inside it and the document rooms that belong to it.
//
// All nested maps are guarded by mu. Engine calls (transport/producer/
// consumer creation, handshakes) never happen under mu; the affected entry
// is revalidated after the call so a racing disconnect or close leaves no
// dangling engine resource.
type Room struct {
	id     domain.RoomID
	router media.Router
	docs   crdt.Engine

	mu        sync.Mutex
	closed    bool
	peers     map[domain.PeerID]*PeerSession
	producers map[domain.ProducerID]*Producer
	documents map[domain.DocumentID]*DocumentRoom
	docPeers  map[domain.PeerID]struct{}
}

func NewRoom(id domain.RoomID, router media.Router, docs crdt.Engine) *Room {
	return &Room{
		id:        id,
		router:    router,
		docs:      docs,
		peers:     make(map[domain.PeerID]*PeerSession),
		producers: make(map[domain.ProducerID]*Producer),
		documents: make(map[domain.DocumentID]*DocumentRoom),
		docPeers:  make(map[domain.PeerID]struct{}),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// Capabilities returns the router's codec capability set.
func (r *Room) Capabilities() []media.CodecCapability {
	return r.router.Capabilities()
}

// AddPeer creates an empty session for the peer. Re-adding a known peer is a
// no-op. Returns false when the room is already torn down; the caller must
// retry through the registry.
func (r *Room) AddPeer(peer domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, ok := r.peers[peer]; !ok {
		r.peers[peer] = newPeerSession(peer)
		log.Info().Str("module", "core.room").Str("room", string(r.id)).
			Str("peer", string(peer)).Msg("peer joined")
	}
	return true
}

func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// HandleCount is the aggregate engine handle count across all sessions.
func (r *Room) HandleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.peers {
		n += s.HandleCount()
	}
	return n
}

// Session returns the peer's session for inspection.
func (r *Room) Session(peer domain.PeerID) (*PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[peer]
	return s, ok
}

// ProducersSnapshot lists every live producer not owned by exclude, so a
// joining peer can immediately begin consuming.
func (r *Room) ProducersSnapshot(exclude domain.PeerID) []ProducerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProducerInfo, 0, len(r.producers))
	for _, p := range r.producers {
		if p.Owner == exclude {
			continue
		}
		out = append(out, p.Info())
	}
	return out
}

// CreateTransport creates an engine transport for the peer. The engine call
// happens first; if the peer turns out not to be joined the fresh transport
// is closed before the error surfaces, so nothing leaks engine-side.
func (r *Room) CreateTransport(peer domain.PeerID, direction media.Direction) (media.TransportDescriptor, error) {
	t, err := r.router.CreateTransport(direction)
	if err != nil {
		return media.TransportDescriptor{}, fmt.Errorf("engine transport: %w", err)
	}
	r.mu.Lock()
	sess, ok := r.peers[peer]
	if !ok || r.closed {
		r.mu.Unlock()
		t.Close()
		return media.TransportDescriptor{}, fmt.Errorf("room %s: %w", r.id, domain.ErrPeerNotFound)
	}
	sess.transports[domain.TransportID(t.ID())] = t
	r.mu.Unlock()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).
		Str("peer", string(peer)).Str("transport", t.ID()).
		Str("direction", string(direction)).Msg("transport created")
	return t.Descriptor(), nil
}

func (r *Room) transport(peer domain.PeerID, id domain.TransportID) (media.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.peers[peer]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", r.id, domain.ErrPeerNotFound)
	}
	t, ok := sess.transports[id]
	if !ok {
		return nil, fmt.Errorf("transport %s: %w", id, domain.ErrTransportNotFound)
	}
	return t, nil
}

// ConnectTransport runs the handshake on a previously created transport.
func (r *Room) ConnectTransport(peer domain.PeerID, id domain.TransportID, params media.HandshakeParams) error {
	t, err := r.transport(peer, id)
	if err != nil {
		return err
	}
	if err := t.Connect(params); err != nil {
		return fmt.Errorf("connect transport %s: %w", id, err)
	}
	return nil
}

// Produce publishes a stream on the named transport and records it under the
// owning session. The caller broadcasts the "new producer" notification.
func (r *Room) Produce(peer domain.PeerID, tid domain.TransportID, kind media.Kind,
	codec media.CodecParameters, appData domain.AppData) (ProducerInfo, error) {

	t, err := r.transport(peer, tid)
	if err != nil {
		return ProducerInfo{}, err
	}
	handle, err := t.Produce(kind, codec)
	if err != nil {
		return ProducerInfo{}, fmt.Errorf("engine produce: %w", err)
	}

	p := &Producer{
		handle:  handle,
		ID:      domain.ProducerID(handle.ID()),
		Owner:   peer,
		Kind:    kind,
		AppData: appData,
	}
	r.mu.Lock()
	sess, ok := r.peers[peer]
	if !ok || r.closed {
		// Peer disconnected while the engine call was in flight.
		r.mu.Unlock()
		handle.Close()
		return ProducerInfo{}, fmt.Errorf("room %s: %w", r.id, domain.ErrPeerNotFound)
	}
	sess.producers[p.ID] = p
	r.producers[p.ID] = p
	r.mu.Unlock()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).
		Str("peer", string(peer)).Str("producer", string(p.ID)).
		Str("kind", string(kind)).Str("role", string(appData.Role)).Msg("producer created")
	return p.Info(), nil
}

// Consume subscribes the peer to a producer. Compatibility is checked before
// the engine call; the producer is revalidated after it, so a consume racing
// a producer close fails cleanly instead of corrupting state. The consumer
// comes back paused.
func (r *Room) Consume(peer domain.PeerID, tid domain.TransportID, producerID domain.ProducerID,
	caps []media.CodecCapability) (ConsumerDescriptor, error) {

	r.mu.Lock()
	sess, ok := r.peers[peer]
	if !ok {
		r.mu.Unlock()
		return ConsumerDescriptor{}, fmt.Errorf("room %s: %w", r.id, domain.ErrPeerNotFound)
	}
	t, ok := sess.transports[tid]
	if !ok {
		r.mu.Unlock()
		return ConsumerDescriptor{}, fmt.Errorf("transport %s: %w", tid, domain.ErrTransportNotFound)
	}
	p, ok := r.producers[producerID]
	if !ok {
		r.mu.Unlock()
		return ConsumerDescriptor{}, fmt.Errorf("producer %s: %w", producerID, domain.ErrProducerNotFound)
	}
	if !r.router.CanConsume(p.handle, caps) {
		r.mu.Unlock()
		return ConsumerDescriptor{}, fmt.Errorf("producer %s: %w", producerID, domain.ErrIncompatibleCapabilities)
	}
	handle := p.handle
	r.mu.Unlock()

	c, err := t.Consume(handle)
	if err != nil {
		return ConsumerDescriptor{}, fmt.Errorf("engine consume: %w", err)
	}

	r.mu.Lock()
	sess, okPeer := r.peers[peer]
	_, okProd := r.producers[producerID]
	if !okPeer || !okProd || r.closed {
		r.mu.Unlock()
		c.Close()
		if !okProd {
			return ConsumerDescriptor{}, fmt.Errorf("producer %s: %w", producerID, domain.ErrProducerNotFound)
		}
		return ConsumerDescriptor{}, fmt.Errorf("room %s: %w", r.id, domain.ErrPeerNotFound)
	}
	sess.consumers[domain.ConsumerID(c.ID())] = c
	r.mu.Unlock()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).
		Str("peer", string(peer)).Str("consumer", c.ID()).
		Str("producer", string(producerID)).Msg("consumer created")
	return ConsumerDescriptor{
		ID:         domain.ConsumerID(c.ID()),
		ProducerID: producerID,
		Kind:       c.Kind(),
		Codec:      c.Codec(),
	}, nil
}

// ResumeConsumer unpauses a consumer and requests a fresh keyframe.
func (r *Room) ResumeConsumer(peer domain.PeerID, id domain.ConsumerID) error {
	r.mu.Lock()
	sess, ok := r.peers[peer]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("room %s: %w", r.id, domain.ErrPeerNotFound)
	}
	c, ok := sess.consumers[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("consumer %s: %w", id, domain.ErrConsumerNotFound)
	}
	r.mu.Unlock()
	if err := c.Resume(); err != nil {
		return fmt.Errorf("resume consumer %s: %w", id, err)
	}
	return nil
}

// CloseProducer closes the producer and every consumer subscribed to it
// across the room. The caller broadcasts "producer closed".
func (r *Room) CloseProducer(peer domain.PeerID, id domain.ProducerID) (ProducerInfo, error) {
	r.mu.Lock()
	sess, ok := r.peers[peer]
	if !ok {
		r.mu.Unlock()
		return ProducerInfo{}, fmt.Errorf("room %s: %w", r.id, domain.ErrPeerNotFound)
	}
	p, ok := sess.producers[id]
	if !ok {
		r.mu.Unlock()
		return ProducerInfo{}, fmt.Errorf("producer %s: %w", id, domain.ErrProducerNotFound)
	}
	delete(sess.producers, id)
	delete(r.producers, id)
	orphans := r.detachConsumersOfLocked(id)
	r.mu.Unlock()

	for _, c := range orphans {
		c.Close()
	}
	p.handle.Close()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).
		Str("producer", string(id)).Int("consumers_closed", len(orphans)).Msg("producer closed")
	return p.Info(), nil
}

// detachConsumersOfLocked removes every consumer of the producer from its
// owning session and returns the handles for closing outside the lock.
func (r *Room) detachConsumersOfLocked(id domain.ProducerID) []media.Consumer {
	var out []media.Consumer
	for _, s := range r.peers {
		for cid, c := range s.consumers {
			if domain.ProducerID(c.ProducerID()) == id {
				delete(s.consumers, cid)
				out = append(out, c)
			}
		}
	}
	return out
}

// RemovePeer tears the session down: every handle it owns is closed,
// consumers elsewhere in the room that fed off its producers are closed too,
// and the session is removed. Reports whether the room is now empty so the
// caller can trigger disposal.
func (r *Room) RemovePeer(peer domain.PeerID) (removed, empty bool) {
	r.mu.Lock()
	sess, ok := r.peers[peer]
	if !ok {
		empty = len(r.peers) == 0
		r.mu.Unlock()
		return false, empty
	}
	delete(r.peers, peer)
	delete(r.docPeers, peer)
	var orphans []media.Consumer
	for pid := range sess.producers {
		delete(r.producers, pid)
		orphans = append(orphans, r.detachConsumersOfLocked(pid)...)
	}
	empty = len(r.peers) == 0
	r.mu.Unlock()

	for _, c := range orphans {
		c.Close()
	}
	sess.closeAll()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).
		Str("peer", string(peer)).Bool("room_empty", empty).Msg("peer removed")
	return true, empty
}

// shutdown marks the room closed and releases the router. Any sessions still
// present are torn down; in the normal empty-room path there are none.
func (r *Room) shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	leftover := make([]*PeerSession, 0, len(r.peers))
	for id, s := range r.peers {
		leftover = append(leftover, s)
		delete(r.peers, id)
	}
	r.producers = make(map[domain.ProducerID]*Producer)
	r.mu.Unlock()

	for _, s := range leftover {
		s.closeAll()
	}
	r.router.Close()
}
