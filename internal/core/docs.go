package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/crdt"
	"github.com/okteva/conclave/internal/domain"
)

// DocumentRoom is one CRDT-backed collaborative document scoped to a room.
// It lives as long as its parent Room; its state is persisted at teardown.
type DocumentRoom struct {
	ID        domain.DocumentID
	Type      domain.DocumentType
	doc       crdt.Doc
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *DocumentRoom) Info() domain.DocumentInfo {
	return domain.DocumentInfo{ID: d.ID, Type: d.Type, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

// DocumentSnapshot carries a document descriptor plus its encoded state,
// handed to joining peers and written to disk at teardown.
type DocumentSnapshot struct {
	domain.DocumentInfo
	State []byte `json:"state"`
}

// provisionDefaultDocuments seeds the three standard surfaces of a meeting:
// shared text, whiteboard and chat.
func (r *Room) provisionDefaultDocuments() {
	defaults := []struct {
		id  domain.DocumentID
		typ domain.DocumentType
	}{
		{domain.DocText, domain.DocTypeText},
		{domain.DocWhiteboard, domain.DocTypeWhiteboard},
		{domain.DocChat, domain.DocTypeChat},
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, d := range defaults {
		r.documents[d.id] = &DocumentRoom{
			ID:        d.id,
			Type:      d.typ,
			doc:       r.docs.NewDoc(d.typ),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
}

// CreateDocument instantiates a document seeded for the given type. Creating
// an id that already exists returns the existing document unchanged.
func (r *Room) CreateDocument(id domain.DocumentID, typ domain.DocumentType) (DocumentSnapshot, error) {
	r.mu.Lock()
	d, ok := r.documents[id]
	if !ok {
		now := time.Now()
		d = &DocumentRoom{ID: id, Type: typ, doc: r.docs.NewDoc(typ), CreatedAt: now, UpdatedAt: now}
		r.documents[id] = d
		log.Info().Str("module", "core.docs").Str("room", string(r.id)).
			Int("doc", int(id)).Str("type", string(typ)).Msg("document created")
	}
	r.mu.Unlock()
	return r.snapshotDocument(d)
}

func (r *Room) document(id domain.DocumentID) (*DocumentRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d in room %s: %w", id, r.id, domain.ErrDocumentNotFound)
	}
	return d, nil
}

// ApplyDocumentUpdate forwards opaque update bytes to the engine. The merge
// is order-independent by construction; this layer never inspects the bytes.
func (r *Room) ApplyDocumentUpdate(id domain.DocumentID, update []byte) error {
	d, err := r.document(id)
	if err != nil {
		return err
	}
	if err := d.doc.ApplyUpdate(update); err != nil {
		return fmt.Errorf("apply update to document %d: %w", id, err)
	}
	r.mu.Lock()
	d.UpdatedAt = time.Now()
	r.mu.Unlock()
	return nil
}

// EncodeDocument returns the document's descriptor plus encoded state.
func (r *Room) EncodeDocument(id domain.DocumentID) (DocumentSnapshot, error) {
	d, err := r.document(id)
	if err != nil {
		return DocumentSnapshot{}, err
	}
	return r.snapshotDocument(d)
}

func (r *Room) snapshotDocument(d *DocumentRoom) (DocumentSnapshot, error) {
	state, err := d.doc.EncodeState()
	if err != nil {
		return DocumentSnapshot{}, fmt.Errorf("encode document %d: %w", d.ID, err)
	}
	r.mu.Lock()
	info := d.Info()
	r.mu.Unlock()
	return DocumentSnapshot{DocumentInfo: info, State: state}, nil
}

// DocumentsSnapshot encodes every document room, ordered by id. Joining
// peers receive this so they can reconstruct all collaborative surfaces.
func (r *Room) DocumentsSnapshot() ([]DocumentSnapshot, error) {
	r.mu.Lock()
	docs := make([]*DocumentRoom, 0, len(r.documents))
	for _, d := range r.documents {
		docs = append(docs, d)
	}
	r.mu.Unlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	out := make([]DocumentSnapshot, 0, len(docs))
	for _, d := range docs {
		snap, err := r.snapshotDocument(d)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// LastActivity is the most recent mutation time across the room's documents.
func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last time.Time
	for _, d := range r.documents {
		if d.UpdatedAt.After(last) {
			last = d.UpdatedAt
		}
	}
	return last
}

// AddDocPeer marks the peer as joined to the room's document surface.
// Only peers already in the meeting room get here; the orchestration layer
// enforces the membership gate.
func (r *Room) AddDocPeer(peer domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peer]; !ok {
		return fmt.Errorf("room %s: %w", r.id, domain.ErrPeerNotFound)
	}
	r.docPeers[peer] = struct{}{}
	return nil
}

// RemoveDocPeer reports whether the peer had joined the document surface.
func (r *Room) RemoveDocPeer(peer domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.docPeers[peer]
	delete(r.docPeers, peer)
	return ok
}

// DocPeers lists connections joined to the document surface.
func (r *Room) DocPeers() []domain.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PeerID, 0, len(r.docPeers))
	for p := range r.docPeers {
		out = append(out, p)
	}
	return out
}
