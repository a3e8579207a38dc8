package signal

import (
	"encoding/json"

	"github.com/okteva/conclave/internal/domain"
)

func (ctl *Controller) handleJoinDocuments(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.badPayload(c, env, err)
		return
	}
	room := domain.RoomID(p.Room)
	docs, err := ctl.Orch.JoinDocuments(peer, room)
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, docs)

	ctl.broadcastDocPeers(room, peer, struct {
		Type string        `json:"type"`
		Peer domain.PeerID `json:"peer_id"`
		Room domain.RoomID `json:"room"`
	}{Type: "doc-user-joined", Peer: peer, Room: room})
}

func (ctl *Controller) handleCreateDocument(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room string `json:"room"`
		Doc  int    `json:"doc_id"`
		Typ  string `json:"doc_type"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(c, env, err)
		return
	}
	room := domain.RoomID(p.Room)
	snap, err := ctl.Orch.CreateDocument(peer, room, domain.DocumentID(p.Doc), domain.DocumentType(p.Typ))
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, snap)

	ctl.broadcastRoom(room, peer, struct {
		Type     string              `json:"type"`
		Room     domain.RoomID       `json:"room"`
		Document domain.DocumentInfo `json:"document"`
	}{Type: "document-created", Room: room, Document: snap.DocumentInfo})
}

func (ctl *Controller) handleUpdateDocument(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room string `json:"room"`
		Doc  int    `json:"doc_id"`
		// Update is the engine-native delta, base64 over the wire.
		Update []byte `json:"update"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(c, env, err)
		return
	}
	room := domain.RoomID(p.Room)
	if err := ctl.Orch.UpdateDocument(peer, room, domain.DocumentID(p.Doc), p.Update); err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, nil)

	ctl.broadcastDocPeers(room, peer, struct {
		Type   string            `json:"type"`
		Room   domain.RoomID     `json:"room"`
		Doc    domain.DocumentID `json:"doc_id"`
		Update []byte            `json:"update"`
		From   domain.PeerID     `json:"from"`
	}{Type: "document-updated", Room: room, Doc: domain.DocumentID(p.Doc), Update: p.Update, From: peer})
}

func (ctl *Controller) handleLeaveDocuments(peer domain.PeerID, c *wsConn, env envelope, data []byte) {
	var p struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.badPayload(c, env, err)
		return
	}
	room := domain.RoomID(p.Room)
	was, err := ctl.Orch.LeaveDocuments(peer, room)
	if err != nil {
		ctl.fail(c, env, err)
		return
	}
	ctl.respond(c, env, nil)

	if was {
		ctl.broadcastDocPeers(room, peer, struct {
			Type string        `json:"type"`
			Peer domain.PeerID `json:"peer_id"`
			Room domain.RoomID `json:"room"`
		}{Type: "doc-user-left", Peer: peer, Room: room})
	}
}
