package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/domain"
)

// SnapshotStore writes document snapshots under a fixed directory at room
// teardown. It is the only durable state in the process; rooms, sessions and
// media handles do not survive a restart.
type SnapshotStore struct {
	dir string
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

func (s *SnapshotStore) Dir() string { return s.dir }

// Save writes one snapshot as {roomId}-{docId}-{type}-{epochMillis}.yjs,
// creating the directory if absent, and returns the file path.
func (s *SnapshotStore) Save(room domain.RoomID, snap DocumentSnapshot) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	name := fmt.Sprintf("%s-%d-%s-%d.yjs", room, snap.ID, snap.Type, time.Now().UnixMilli())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, snap.State, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", name, err)
	}
	log.Info().Str("module", "core.snapshot").Str("room", string(room)).
		Int("doc", int(snap.ID)).Str("file", name).Int("bytes", len(snap.State)).Msg("document persisted")
	return path, nil
}
