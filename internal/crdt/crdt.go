// Package crdt defines the boundary to the CRDT engine. The engine merges
// concurrent document edits conflict-free; the orchestration layer treats
// update bytes as opaque and never interprets them.
package crdt

import "github.com/okteva/conclave/internal/domain"

// Doc is one live document instance.
type Doc interface {
	// ApplyUpdate merges an opaque update delta. Merging is commutative and
	// idempotent by construction of the engine.
	ApplyUpdate(update []byte) error
	// EncodeState returns a snapshot sufficient to reconstruct the document.
	EncodeState() ([]byte, error)
}

// Engine instantiates documents seeded for a document type.
type Engine interface {
	NewDoc(t domain.DocumentType) Doc
}
