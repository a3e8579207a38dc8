// Package media defines the boundary to the media engine: workers, routers
// and the per-peer transport/producer/consumer handles. The engine performs
// the actual packet routing and handshakes; this package only names the
// contract the orchestration layer depends on.
package media

import "encoding/json"

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// CodecCapability describes one codec a router supports.
type CodecCapability struct {
	Kind      Kind   `json:"kind"`
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
}

// CodecParameters are the negotiated parameters of one stream.
type CodecParameters struct {
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
}

// DefaultCodecs is the fixed capability set every room router is created
// with: Opus for audio, VP8 for video.
func DefaultCodecs() []CodecCapability {
	return []CodecCapability{
		{Kind: KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: KindVideo, MimeType: "video/VP8", ClockRate: 90000},
	}
}

// TransportDescriptor is handed to the client so it can run the handshake.
// Handshake is engine-native and opaque to the orchestration layer.
type TransportDescriptor struct {
	ID        string          `json:"id"`
	Direction Direction       `json:"direction"`
	Handshake json.RawMessage `json:"handshake"`
}

// HandshakeParams is the client's half of the transport handshake,
// engine-native and opaque at this layer.
type HandshakeParams json.RawMessage

// Engine creates workers. One engine instance exists per process.
type Engine interface {
	CreateWorker(id int) (Worker, error)
}

// Worker is an opaque handle to one engine worker. Worker death is fatal to
// the whole process; OnDied must be registered before any router is created.
type Worker interface {
	ID() string
	CreateRouter(codecs []CodecCapability) (Router, error)
	OnDied(func(error))
	Close()
}

// Router is the media-routing domain of one room.
type Router interface {
	Capabilities() []CodecCapability
	CreateTransport(direction Direction) (Transport, error)
	// CanConsume reports whether caps can receive the given producer.
	CanConsume(p Producer, caps []CodecCapability) bool
	Close()
}

// Transport is a bidirectional endpoint owned by exactly one peer session.
// It must be connected before it can carry producers or consumers.
type Transport interface {
	ID() string
	Descriptor() TransportDescriptor
	Connect(params HandshakeParams) error
	Produce(kind Kind, codec CodecParameters) (Producer, error)
	// Consume subscribes to p. Consumers are created paused.
	Consume(p Producer) (Consumer, error)
	Close()
}

type Producer interface {
	ID() string
	Kind() Kind
	Codec() CodecParameters
	Close()
}

type Consumer interface {
	ID() string
	Kind() Kind
	Codec() CodecParameters
	ProducerID() string
	// Resume unpauses the consumer and requests a fresh keyframe so a new
	// video subscriber does not wait for the next natural keyframe.
	Resume() error
	Close()
}
