package domain

import "time"

// DocumentType selects how a new document is seeded. The set is open:
// unknown types get a generic container.
type DocumentType string

const (
	DocTypeText       DocumentType = "text"
	DocTypeWhiteboard DocumentType = "whiteboard"
	DocTypeChat       DocumentType = "chat"
)

// DocumentInfo is the read-only descriptor of a document room.
type DocumentInfo struct {
	ID        DocumentID   `json:"id"`
	Type      DocumentType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
