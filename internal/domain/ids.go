// Package domain contains entities without logic, just meta-data
package domain

type (
	// RoomID is an opaque room identifier chosen by clients.
	RoomID string
	// PeerID identifies one live signaling connection.
	PeerID string
)

type (
	TransportID string
	ProducerID  string
	ConsumerID  string
)

// DocumentID addresses one collaborative document inside a room.
// The default documents occupy the low ids.
type DocumentID int

const (
	DocText       DocumentID = 0
	DocWhiteboard DocumentID = 1
	DocChat       DocumentID = 2
)
