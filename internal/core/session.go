package core

import (
	"github.com/okteva/conclave/internal/domain"
	"github.com/okteva/conclave/internal/media"
)

// PeerSession tracks the media handles one participant owns inside a room.
// It is guarded by the owning Room's mutex and never outlives the Room.
type PeerSession struct {
	id         domain.PeerID
	transports map[domain.TransportID]media.Transport
	producers  map[domain.ProducerID]*Producer
	consumers  map[domain.ConsumerID]media.Consumer
}

func newPeerSession(id domain.PeerID) *PeerSession {
	return &PeerSession{
		id:         id,
		transports: make(map[domain.TransportID]media.Transport),
		producers:  make(map[domain.ProducerID]*Producer),
		consumers:  make(map[domain.ConsumerID]media.Consumer),
	}
}

func (s *PeerSession) ID() domain.PeerID { return s.id }

// HandleCount is the total number of engine handles the session owns.
func (s *PeerSession) HandleCount() int {
	return len(s.transports) + len(s.producers) + len(s.consumers)
}

func (s *PeerSession) ProducerCount() int { return len(s.producers) }
func (s *PeerSession) ConsumerCount() int { return len(s.consumers) }

// closeAll releases every engine handle the session owns. Producers and
// consumers go first so transports close with nothing riding on them.
func (s *PeerSession) closeAll() {
	for id, c := range s.consumers {
		c.Close()
		delete(s.consumers, id)
	}
	for id, p := range s.producers {
		p.handle.Close()
		delete(s.producers, id)
	}
	for id, t := range s.transports {
		t.Close()
		delete(s.transports, id)
	}
}

// Producer pairs the engine handle with its orchestration-layer metadata.
type Producer struct {
	handle  media.Producer
	ID      domain.ProducerID
	Owner   domain.PeerID
	Kind    media.Kind
	AppData domain.AppData
}

// ProducerInfo is the wire view of a producer, sent to joining peers and in
// "new producer" broadcasts.
type ProducerInfo struct {
	ID      domain.ProducerID `json:"producer_id"`
	Peer    domain.PeerID     `json:"peer_id"`
	Kind    media.Kind        `json:"kind"`
	AppData domain.AppData    `json:"app_data"`
}

func (p *Producer) Info() ProducerInfo {
	return ProducerInfo{ID: p.ID, Peer: p.Owner, Kind: p.Kind, AppData: p.AppData}
}

// ConsumerDescriptor is returned from a successful consume request. The
// consumer starts paused; no packets flow until resume succeeds.
type ConsumerDescriptor struct {
	ID         domain.ConsumerID     `json:"consumer_id"`
	ProducerID domain.ProducerID     `json:"producer_id"`
	Kind       media.Kind            `json:"kind"`
	Codec      media.CodecParameters `json:"codec"`
}
