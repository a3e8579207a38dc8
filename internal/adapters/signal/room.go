package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/domain"
	"github.com/okteva/conclave/internal/media"
)

func (ctl *Controller) handleJoin(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.badPayload(c, env, err)
		return
	}
	if !ctl.limiter.Allow(peer) {
		log.Warn().Str("module", "signal").Str("peer", string(peer)).Msg("join rate limited")
		ctl.sendJSON(c, response{Type: "response", RID: env.RID, Op: env.Type, Success: false, Error: "rate_limited"})
		return
	}

	res, err := ctl.Orch.Join(peer, domain.RoomID(p.Room))
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("peer", string(peer)).Str("room", p.Room).Msg("join")
	ctl.respond(c, env, res)
}

func (ctl *Controller) handleCreateTransport(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room      string          `json:"room"`
		Direction media.Direction `json:"direction"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(c, env, err)
		return
	}
	desc, err := ctl.Orch.CreateTransport(peer, domain.RoomID(p.Room), p.Direction)
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, desc)
}

func (ctl *Controller) handleConnectTransport(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room      string          `json:"room"`
		Transport string          `json:"transport_id"`
		Handshake json.RawMessage `json:"handshake"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(c, env, err)
		return
	}
	err := ctl.Orch.ConnectTransport(peer, domain.RoomID(p.Room),
		domain.TransportID(p.Transport), media.HandshakeParams(p.Handshake))
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, nil)
}

func (ctl *Controller) handleProduce(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room      string                `json:"room"`
		Transport string                `json:"transport_id"`
		Kind      media.Kind            `json:"kind"`
		Codec     media.CodecParameters `json:"codec"`
		AppData   struct {
			Role  string            `json:"role"`
			Label string            `json:"label"`
			Extra map[string]string `json:"extra"`
		} `json:"app_data"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(c, env, err)
		return
	}
	info, err := ctl.Orch.Produce(peer, domain.RoomID(p.Room), domain.TransportID(p.Transport),
		p.Kind, p.Codec, domain.NewAppData(p.AppData.Role, p.AppData.Label, p.AppData.Extra))
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, struct {
		ProducerID domain.ProducerID `json:"producer_id"`
	}{info.ID})

	ctl.broadcastRoom(domain.RoomID(p.Room), peer, struct {
		Type       string            `json:"type"`
		ProducerID domain.ProducerID `json:"producer_id"`
		Peer       domain.PeerID     `json:"peer_id"`
		AppData    domain.AppData    `json:"app_data"`
	}{Type: "new-producer", ProducerID: info.ID, Peer: info.Peer, AppData: info.AppData})
}

func (ctl *Controller) handleConsume(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room         string                  `json:"room"`
		Transport    string                  `json:"transport_id"`
		Producer     string                  `json:"producer_id"`
		Capabilities []media.CodecCapability `json:"capabilities"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(c, env, err)
		return
	}
	desc, err := ctl.Orch.Consume(peer, domain.RoomID(p.Room), domain.TransportID(p.Transport),
		domain.ProducerID(p.Producer), p.Capabilities)
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, desc)
}

func (ctl *Controller) handleResumeConsumer(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room     string `json:"room"`
		Consumer string `json:"consumer_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(c, env, err)
		return
	}
	if err := ctl.Orch.ResumeConsumer(peer, domain.RoomID(p.Room), domain.ConsumerID(p.Consumer)); err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, nil)
}

func (ctl *Controller) handleCloseProducer(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room     string `json:"room"`
		Producer string `json:"producer_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(c, env, err)
		return
	}
	info, err := ctl.Orch.CloseProducer(peer, domain.RoomID(p.Room), domain.ProducerID(p.Producer))
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, nil)

	ctl.broadcastRoom(domain.RoomID(p.Room), peer, struct {
		Type       string            `json:"type"`
		ProducerID domain.ProducerID `json:"producer_id"`
		Peer       domain.PeerID     `json:"peer_id"`
	}{Type: "producer-closed", ProducerID: info.ID, Peer: info.Peer})
}
