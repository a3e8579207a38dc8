package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/app"
	"github.com/okteva/conclave/internal/config"
	"github.com/okteva/conclave/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the WebSocket signaling surface: one request/response
// operation per message, plus best-effort broadcasts to other room members.
type Controller struct {
	Orch    *app.Orchestrator
	cfg     *config.Config
	limiter *JoinRateLimiter
}

func NewController(orch *app.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{
		Orch:    orch,
		cfg:     cfg,
		limiter: NewJoinRateLimiter(10, time.Minute),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	peer := domain.PeerID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("peer", string(peer)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Sessions.Bind(peer, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, peer, conn)
}

// envelope is the part of every inbound message the dispatcher needs.
// rid is an optional client request id echoed back in the response.
type envelope struct {
	Type string `json:"type"`
	RID  string `json:"rid,omitempty"`
}

func (ctl *Controller) dispatch(peer domain.PeerID, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(peer, c, env, data)
	case "create-transport":
		ctl.handleCreateTransport(peer, c, env, data)
	case "connect-transport":
		ctl.handleConnectTransport(peer, c, env, data)
	case "produce":
		ctl.handleProduce(peer, c, env, data)
	case "consume":
		ctl.handleConsume(peer, c, env, data)
	case "resume-consumer":
		ctl.handleResumeConsumer(peer, c, env, data)
	case "close-producer":
		ctl.handleCloseProducer(peer, c, env, data)
	case "join-documents":
		ctl.handleJoinDocuments(peer, c, env, data)
	case "create-document":
		ctl.handleCreateDocument(peer, c, env, data)
	case "update-document":
		ctl.handleUpdateDocument(peer, c, env, data)
	case "leave-documents":
		ctl.handleLeaveDocuments(peer, c, env, data)
	case "get-stats":
		ctl.handleGetStats(c, env)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

// response is the uniform request/response envelope: either a success
// payload or {success:false, error}.
type response struct {
	Type    string `json:"type"`
	RID     string `json:"rid,omitempty"`
	Op      string `json:"op"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (ctl *Controller) respond(c *wsConn, env envelope, data any) {
	ctl.sendJSON(c, response{Type: "response", RID: env.RID, Op: env.Type, Success: true, Data: data})
}

func (ctl *Controller) fail(c *wsConn, env envelope, err error) {
	log.Warn().Err(err).Str("module", "signal").Str("op", env.Type).Msg("operation failed")
	ctl.sendJSON(c, response{Type: "response", RID: env.RID, Op: env.Type, Success: false, Error: domain.ErrorCode(err)})
}

func (ctl *Controller) badPayload(c *wsConn, env envelope, err error) {
	log.Error().Err(err).Str("module", "signal").Str("op", env.Type).Msg("bad payload")
	ctl.sendJSON(c, response{Type: "response", RID: env.RID, Op: env.Type, Success: false, Error: "bad_payload"})
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// broadcastRoom fans a notification out to every room member except from.
// Broadcasts are best-effort: a full send buffer drops the frame.
func (ctl *Controller) broadcastRoom(room domain.RoomID, from domain.PeerID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	for _, m := range ctl.Orch.Sessions.MembersOfRoom(room) {
		if m.Peer == from {
			continue
		}
		_ = m.Conn.TrySend(b)
	}
}

// broadcastDocPeers fans out to connections on the room's document surface.
func (ctl *Controller) broadcastDocPeers(room domain.RoomID, from domain.PeerID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	for _, peer := range ctl.Orch.DocPeers(room) {
		if peer == from {
			continue
		}
		if conn, ok := ctl.Orch.Sessions.Conn(peer); ok {
			_ = conn.TrySend(b)
		}
	}
}
