// Package mediatest provides an in-memory implementation of the media engine
// boundary. Handles record their lifecycle so tests can assert that nothing
// leaks engine-side.
package mediatest

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okteva/conclave/internal/media"
)

var seq atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

type Engine struct {
	mu      sync.Mutex
	Workers []*Worker
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) CreateWorker(id int) (media.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := &Worker{id: fmt.Sprintf("worker-%d", id)}
	e.Workers = append(e.Workers, w)
	return w, nil
}

// Routers collects every router created across all workers.
func (e *Engine) Routers() []*Router {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Router
	for _, w := range e.Workers {
		w.mu.Lock()
		out = append(out, w.Routers...)
		w.mu.Unlock()
	}
	return out
}

type Worker struct {
	mu      sync.Mutex
	id      string
	died    func(error)
	Routers []*Router
	Closed  bool
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) CreateRouter(codecs []media.CodecCapability) (media.Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := &Router{codecs: codecs}
	w.Routers = append(w.Routers, r)
	return r, nil
}

func (w *Worker) OnDied(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.died = fn
}

// Die fires the registered death callback the way the real engine would.
func (w *Worker) Die(err error) {
	w.mu.Lock()
	fn := w.died
	w.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Closed = true
}

func (w *Worker) RouterCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.Routers)
}

type Router struct {
	mu         sync.Mutex
	codecs     []media.CodecCapability
	Transports []*Transport
	Closed     bool
	// TransportErr, when set, fails the next CreateTransport.
	TransportErr error
}

func (r *Router) Capabilities() []media.CodecCapability { return r.codecs }

func (r *Router) CreateTransport(direction media.Direction) (media.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TransportErr != nil {
		err := r.TransportErr
		r.TransportErr = nil
		return nil, err
	}
	t := &Transport{id: nextID("transport"), direction: direction}
	r.Transports = append(r.Transports, t)
	return t, nil
}

func (r *Router) CanConsume(p media.Producer, caps []media.CodecCapability) bool {
	for _, c := range caps {
		if c.Kind == p.Kind() {
			return true
		}
	}
	return false
}

func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
}

type Transport struct {
	mu        sync.Mutex
	id        string
	direction media.Direction
	Connected bool
	Closed    bool
	Producers []*Producer
	Consumers []*Consumer
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Descriptor() media.TransportDescriptor {
	return media.TransportDescriptor{
		ID:        t.id,
		Direction: t.direction,
		Handshake: json.RawMessage(`{"fake":true}`),
	}
}

func (t *Transport) Connect(media.HandshakeParams) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Connected = true
	return nil
}

func (t *Transport) Produce(kind media.Kind, codec media.CodecParameters) (media.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &Producer{id: nextID("producer"), kind: kind, codec: codec}
	t.Producers = append(t.Producers, p)
	return p, nil
}

func (t *Transport) Consume(p media.Producer) (media.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Consumer{id: nextID("consumer"), producer: p, Paused: true}
	t.Consumers = append(t.Consumers, c)
	return c, nil
}

func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
}

func (t *Transport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

type Producer struct {
	mu     sync.Mutex
	id     string
	kind   media.Kind
	codec  media.CodecParameters
	Closed bool
}

func (p *Producer) ID() string                   { return p.id }
func (p *Producer) Kind() media.Kind             { return p.kind }
func (p *Producer) Codec() media.CodecParameters { return p.codec }

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
}

func (p *Producer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

type Consumer struct {
	mu       sync.Mutex
	id       string
	producer media.Producer
	Paused   bool
	Closed   bool
}

func (c *Consumer) ID() string                   { return c.id }
func (c *Consumer) Kind() media.Kind             { return c.producer.Kind() }
func (c *Consumer) Codec() media.CodecParameters { return c.producer.Codec() }
func (c *Consumer) ProducerID() string           { return c.producer.ID() }

func (c *Consumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Paused = false
	return nil
}

func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
}

func (c *Consumer) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Paused
}

func (c *Consumer) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Closed
}
