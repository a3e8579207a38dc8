// Package deltalog is a state-based CRDT engine: a document is the grow-only
// set of update deltas it has seen, deduplicated by digest. Set union is
// commutative and idempotent, so concurrent updates merge in any order.
// Snapshots are msgpack envelopes holding the deltas in digest order, which
// makes the encoded state independent of arrival order.
package deltalog

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okteva/conclave/internal/crdt"
	"github.com/okteva/conclave/internal/domain"
)

var ErrEmptyUpdate = errors.New("empty update")

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) NewDoc(t domain.DocumentType) crdt.Doc {
	d := &Doc{
		typ:     t,
		updates: make(map[string][]byte),
	}
	// Seed the root container so an empty document still round-trips its type.
	_ = d.ApplyUpdate(seedUpdate(t))
	return d
}

func seedUpdate(t domain.DocumentType) []byte {
	container := "map"
	switch t {
	case domain.DocTypeText:
		container = "text"
	case domain.DocTypeWhiteboard:
		container = "paths"
	case domain.DocTypeChat:
		container = "messages"
	}
	b, _ := msgpack.Marshal(map[string]string{"container": container})
	return b
}

// snapshot is the wire form of an encoded document state.
type snapshot struct {
	Type    string   `msgpack:"type"`
	Updates [][]byte `msgpack:"updates"`
}

type Doc struct {
	mu      sync.RWMutex
	typ     domain.DocumentType
	updates map[string][]byte
}

func (d *Doc) ApplyUpdate(update []byte) error {
	if len(update) == 0 {
		return ErrEmptyUpdate
	}
	// A snapshot envelope merges as the union of its deltas, so state and
	// incremental updates go through the same path.
	var snap snapshot
	if err := msgpack.Unmarshal(update, &snap); err == nil && len(snap.Updates) > 0 {
		d.mu.Lock()
		for _, u := range snap.Updates {
			d.updates[digest(u)] = u
		}
		d.mu.Unlock()
		return nil
	}
	d.mu.Lock()
	d.updates[digest(update)] = update
	d.mu.Unlock()
	return nil
}

func (d *Doc) EncodeState() ([]byte, error) {
	d.mu.RLock()
	keys := make([]string, 0, len(d.updates))
	for k := range d.updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	snap := snapshot{Type: string(d.typ), Updates: make([][]byte, 0, len(keys))}
	for _, k := range keys {
		snap.Updates = append(snap.Updates, d.updates[k])
	}
	d.mu.RUnlock()
	return msgpack.Marshal(&snap)
}

// Len reports how many distinct deltas the document holds.
func (d *Doc) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.updates)
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
