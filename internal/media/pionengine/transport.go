package pionengine

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/media"
)

type transport struct {
	id        string
	direction media.Direction
	pc        *webrtc.PeerConnection
	desc      media.TransportDescriptor

	mu      sync.Mutex
	closed  bool
	pending map[media.Kind][]*producer
}

func (t *transport) ID() string { return t.id }

func (t *transport) Descriptor() media.TransportDescriptor { return t.desc }

// Connect applies the client's answer, completing the DTLS handshake.
func (t *transport) Connect(params media.HandshakeParams) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(params, &answer); err != nil {
		return fmt.Errorf("bad handshake params: %w", err)
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Produce registers a published stream. The relay to subscribers starts once
// the matching remote track arrives over the transport.
func (t *transport) Produce(kind media.Kind, codec media.CodecParameters) (media.Producer, error) {
	if t.direction != media.DirectionSend {
		return nil, fmt.Errorf("produce on %s transport", t.direction)
	}
	local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:  codec.MimeType,
		ClockRate: codec.ClockRate,
		Channels:  codec.Channels,
	}, string(kind), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	p := &producer{
		id:    uuid.NewString(),
		kind:  kind,
		codec: codec,
		local: local,
		owner: t,
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	t.pending[kind] = append(t.pending[kind], p)
	t.mu.Unlock()
	return p, nil
}

// Consume registers a subscription to the producer. The relay track is not
// attached yet: a consumer starts paused and carries no packets until Resume
// succeeds.
func (t *transport) Consume(src media.Producer) (media.Consumer, error) {
	p, ok := src.(*producer)
	if !ok {
		return nil, fmt.Errorf("producer from a different engine")
	}
	if t.direction != media.DirectionRecv {
		return nil, fmt.Errorf("consume on %s transport", t.direction)
	}
	return &consumer{
		id:    uuid.NewString(),
		prod:  p,
		owner: t,
	}, nil
}

// onRemoteTrack binds an incoming track to the oldest unbound producer of
// the same kind and starts its relay loop.
func (t *transport) onRemoteTrack(remote *webrtc.TrackRemote) {
	kind := media.KindAudio
	if remote.Kind() == webrtc.RTPCodecTypeVideo {
		kind = media.KindVideo
	}
	t.mu.Lock()
	queue := t.pending[kind]
	var p *producer
	if len(queue) > 0 {
		p, t.pending[kind] = queue[0], queue[1:]
	}
	t.mu.Unlock()
	if p == nil {
		log.Warn().Str("module", "pionengine").Str("transport", t.id).
			Str("kind", string(kind)).Msg("remote track without producer, dropping")
		return
	}
	p.bind(remote)
	go p.relay()
}

func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.pending = make(map[media.Kind][]*producer)
	t.mu.Unlock()
	if err := t.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "pionengine").Str("transport", t.id).Msg("close error")
	}
}

type producer struct {
	id    string
	kind  media.Kind
	codec media.CodecParameters
	local *webrtc.TrackLocalStaticRTP
	owner *transport

	mu     sync.Mutex
	remote *webrtc.TrackRemote
	closed atomic.Bool
}

func (p *producer) ID() string                   { return p.id }
func (p *producer) Kind() media.Kind             { return p.kind }
func (p *producer) Codec() media.CodecParameters { return p.codec }

func (p *producer) bind(remote *webrtc.TrackRemote) {
	p.mu.Lock()
	p.remote = remote
	p.mu.Unlock()
}

// relay copies RTP from the remote track into the shared local track that
// every consumer subscribes to.
func (p *producer) relay() {
	p.mu.Lock()
	remote := p.remote
	p.mu.Unlock()
	for {
		if p.closed.Load() {
			return
		}
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "pionengine").Str("producer", p.id).Msg("relay stopped")
			return
		}
		if err := p.local.WriteRTP(pkt); err != nil {
			log.Debug().Err(err).Str("module", "pionengine").Str("producer", p.id).Msg("relay write failed")
			return
		}
	}
}

// requestKeyframe asks the publisher for a fresh keyframe via PLI.
func (p *producer) requestKeyframe() error {
	if p.kind != media.KindVideo {
		return nil
	}
	p.mu.Lock()
	remote := p.remote
	p.mu.Unlock()
	if remote == nil {
		// No media flowing yet; the first frame will be a keyframe anyway.
		return nil
	}
	return p.owner.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
	})
}

func (p *producer) Close() {
	p.closed.Store(true)
}

type consumer struct {
	id    string
	prod  *producer
	owner *transport

	mu     sync.Mutex
	sender *webrtc.RTPSender
	closed bool
}

func (c *consumer) ID() string                   { return c.id }
func (c *consumer) Kind() media.Kind             { return c.prod.kind }
func (c *consumer) Codec() media.CodecParameters { return c.prod.codec }
func (c *consumer) ProducerID() string           { return c.prod.id }

// Resume attaches the producer's relay track, letting packets flow for the
// first time, and asks the publisher for a fresh keyframe. Resuming twice is
// a no-op.
func (c *consumer) Resume() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("consumer %s closed", c.id)
	}
	if c.sender == nil {
		sender, err := c.owner.pc.AddTrack(c.prod.local)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("add track: %w", err)
		}
		c.sender = sender
	}
	c.mu.Unlock()
	return c.prod.requestKeyframe()
}

func (c *consumer) Close() {
	c.mu.Lock()
	sender := c.sender
	c.sender = nil
	c.closed = true
	c.mu.Unlock()
	if sender == nil {
		return
	}
	if err := c.owner.pc.RemoveTrack(sender); err != nil {
		log.Debug().Err(err).Str("module", "pionengine").Str("consumer", c.id).Msg("remove track")
	}
}
