package pionengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/media"
)

type router struct {
	api    *webrtc.API
	config webrtc.Configuration
	codecs []media.CodecCapability

	mu     sync.Mutex
	closed bool
}

func newRouter(api *webrtc.API, config webrtc.Configuration, codecs []media.CodecCapability) *router {
	return &router{api: api, config: config, codecs: codecs}
}

func (r *router) Capabilities() []media.CodecCapability {
	out := make([]media.CodecCapability, len(r.codecs))
	copy(out, r.codecs)
	return out
}

// CanConsume is a pure compatibility check: the requested capabilities must
// include the producer's codec.
func (r *router) CanConsume(p media.Producer, caps []media.CodecCapability) bool {
	want := p.Codec().MimeType
	for _, c := range caps {
		if strings.EqualFold(c.MimeType, want) && c.Kind == p.Kind() {
			return true
		}
	}
	return false
}

func (r *router) CreateTransport(direction media.Direction) (media.Transport, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("router closed")
	}
	r.mu.Unlock()

	pc, err := r.api.NewPeerConnection(r.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	// A send transport carries client->server media, so the server side
	// only receives; a recv transport is the reverse.
	dir := webrtc.RTPTransceiverDirectionRecvonly
	if direction == media.DirectionRecv {
		dir = webrtc.RTPTransceiverDirectionSendonly
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: dir}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add transceiver: %w", err)
		}
	}

	t := &transport{
		id:        uuid.NewString(),
		direction: direction,
		pc:        pc,
		pending:   make(map[media.Kind][]*producer),
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.onRemoteTrack(remote)
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "pionengine").Str("transport", t.id).
			Str("ice_state", s.String()).Msg("ICE state")
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	handshake, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("marshal offer: %w", err)
	}
	t.desc = media.TransportDescriptor{ID: t.id, Direction: direction, Handshake: handshake}
	return t, nil
}

func (r *router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
