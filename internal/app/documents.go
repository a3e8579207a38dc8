package app

import (
	"fmt"

	"github.com/okteva/conclave/internal/core"
	"github.com/okteva/conclave/internal/domain"
)

// roomAsMember resolves the room while enforcing the membership gate: the
// document surface is reachable only by a connection that already joined the
// corresponding meeting room. This is a correctness gate, not an
// optimization.
func (o *Orchestrator) roomAsMember(peer domain.PeerID, roomID domain.RoomID) (*core.Room, error) {
	cur, ok := o.Sessions.RoomOf(peer)
	if !ok || cur != roomID {
		return nil, fmt.Errorf("peer %s in room %s: %w", peer, roomID, domain.ErrMembershipRequired)
	}
	return o.Rooms.Get(roomID)
}

// JoinDocuments admits the peer to the room's document surface and returns
// the serialized state of every document room.
func (o *Orchestrator) JoinDocuments(peer domain.PeerID, roomID domain.RoomID) ([]core.DocumentSnapshot, error) {
	room, err := o.roomAsMember(peer, roomID)
	if err != nil {
		return nil, err
	}
	if err := room.AddDocPeer(peer); err != nil {
		return nil, err
	}
	return room.DocumentsSnapshot()
}

// LeaveDocuments removes the peer from the document surface. Reports whether
// the peer was on it, so the adapter knows whether to broadcast "user left".
func (o *Orchestrator) LeaveDocuments(peer domain.PeerID, roomID domain.RoomID) (bool, error) {
	room, err := o.roomAsMember(peer, roomID)
	if err != nil {
		return false, err
	}
	return room.RemoveDocPeer(peer), nil
}

// CreateDocument provisions a new document room. The adapter broadcasts
// "document created" with the returned snapshot.
func (o *Orchestrator) CreateDocument(peer domain.PeerID, roomID domain.RoomID,
	doc domain.DocumentID, typ domain.DocumentType) (core.DocumentSnapshot, error) {
	room, err := o.roomAsMember(peer, roomID)
	if err != nil {
		return core.DocumentSnapshot{}, err
	}
	return room.CreateDocument(doc, typ)
}

// UpdateDocument merges opaque update bytes into the addressed document.
// Addressing is always (room, document); there is no fallback to a default
// document, since that would conflate distinct collaborative surfaces.
func (o *Orchestrator) UpdateDocument(peer domain.PeerID, roomID domain.RoomID,
	doc domain.DocumentID, update []byte) error {
	room, err := o.roomAsMember(peer, roomID)
	if err != nil {
		return err
	}
	return room.ApplyDocumentUpdate(doc, update)
}

// DocPeers lists the connections currently on the room's document surface.
func (o *Orchestrator) DocPeers(roomID domain.RoomID) []domain.PeerID {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return nil
	}
	return room.DocPeers()
}
