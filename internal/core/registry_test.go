package core_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okteva/conclave/internal/core"
	"github.com/okteva/conclave/internal/crdt/deltalog"
	"github.com/okteva/conclave/internal/domain"
	"github.com/okteva/conclave/internal/media"
	"github.com/okteva/conclave/internal/media/mediatest"
)

type fixture struct {
	engine *mediatest.Engine
	pool   *media.WorkerPool
	store  *core.SnapshotStore
	rooms  *core.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := mediatest.NewEngine()
	pool, err := media.NewWorkerPool(engine, 2, func(error) {})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	store := core.NewSnapshotStore(t.TempDir())
	return &fixture{
		engine: engine,
		pool:   pool,
		store:  store,
		rooms:  core.NewRegistry(pool, deltalog.New(), store),
	}
}

func (f *fixture) routerCount() int {
	n := 0
	for _, w := range f.engine.Workers {
		n += w.RouterCount()
	}
	return n
}

func (f *fixture) snapshotFiles(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.store.Dir())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestGetOrCreateConcurrentFirstJoin(t *testing.T) {
	f := newFixture(t)

	const n = 16
	got := make([]*core.Room, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = f.rooms.GetOrCreate("standup")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < n; i++ {
		require.Same(t, got[0], got[i])
	}
	require.Equal(t, 1, f.routerCount())
}

func TestGetOrCreateProvisionsDefaultDocuments(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.GetOrCreate("standup")
	require.NoError(t, err)

	snaps, err := room.DocumentsSnapshot()
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	require.Equal(t, domain.DocText, snaps[0].ID)
	require.Equal(t, domain.DocTypeText, snaps[0].Type)
	require.Equal(t, domain.DocWhiteboard, snaps[1].ID)
	require.Equal(t, domain.DocTypeWhiteboard, snaps[1].Type)
	require.Equal(t, domain.DocChat, snaps[2].ID)
	require.Equal(t, domain.DocTypeChat, snaps[2].Type)
}

func TestGetUnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.rooms.Get("nope")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestDestroyEmptyRoomPersistsDocuments(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.GetOrCreate("standup")
	require.NoError(t, err)
	require.True(t, room.AddPeer("alice"))
	_, empty := room.RemovePeer("alice")
	require.True(t, empty)

	require.NoError(t, f.rooms.Destroy("standup"))

	_, err = f.rooms.Get("standup")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	require.Len(t, f.snapshotFiles(t), 3)
	require.True(t, f.engine.Routers()[0].Closed)

	// Destroying again is a no-op and writes nothing new.
	require.NoError(t, f.rooms.Destroy("standup"))
	require.Len(t, f.snapshotFiles(t), 3)
}

func TestDestroyRemovesRoomEvenWhenPersistFails(t *testing.T) {
	engine := mediatest.NewEngine()
	pool, err := media.NewWorkerPool(engine, 1, func(error) {})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// A regular file where the snapshot directory should be makes every
	// Save fail.
	blocked := filepath.Join(t.TempDir(), "documents")
	require.NoError(t, os.WriteFile(blocked, []byte("in the way"), 0o644))
	rooms := core.NewRegistry(pool, deltalog.New(), core.NewSnapshotStore(blocked))

	room, err := rooms.GetOrCreate("standup")
	require.NoError(t, err)
	require.True(t, room.AddPeer("alice"))
	_, empty := room.RemovePeer("alice")
	require.True(t, empty)

	require.Error(t, rooms.Destroy("standup"))

	// The snapshot is lost but the room id is not wedged: the entry is gone
	// and the next join builds a fresh room.
	_, err = rooms.Get("standup")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	require.True(t, engine.Routers()[0].Closed)

	again, err := rooms.GetOrCreate("standup")
	require.NoError(t, err)
	require.True(t, again.AddPeer("bob"))
	require.NotSame(t, room, again)
}

func TestDestroyLeavesOccupiedRoomAlone(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.GetOrCreate("standup")
	require.NoError(t, err)
	require.True(t, room.AddPeer("alice"))

	require.NoError(t, f.rooms.Destroy("standup"))

	again, err := f.rooms.Get("standup")
	require.NoError(t, err)
	require.Same(t, room, again)
	require.Empty(t, f.snapshotFiles(t))
}

func TestRoomsSpreadAcrossWorkers(t *testing.T) {
	f := newFixture(t)
	_, err := f.rooms.GetOrCreate("a")
	require.NoError(t, err)
	_, err = f.rooms.GetOrCreate("b")
	require.NoError(t, err)

	require.Equal(t, 1, f.engine.Workers[0].RouterCount())
	require.Equal(t, 1, f.engine.Workers[1].RouterCount())
}

func TestShutdownPersistsLiveRooms(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.GetOrCreate("standup")
	require.NoError(t, err)
	require.True(t, room.AddPeer("alice"))

	f.rooms.Shutdown()

	require.Len(t, f.snapshotFiles(t), 3)
	require.True(t, f.engine.Routers()[0].Closed)
	_, err = f.rooms.Get("standup")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestStatsCountsRoomsAndClients(t *testing.T) {
	f := newFixture(t)
	a, err := f.rooms.GetOrCreate("alpha")
	require.NoError(t, err)
	require.True(t, a.AddPeer("p1"))
	require.True(t, a.AddPeer("p2"))
	b, err := f.rooms.GetOrCreate("beta")
	require.NoError(t, err)
	require.True(t, b.AddPeer("p3"))

	st := f.rooms.Stats()
	require.Equal(t, 2, st.RoomCount)
	require.Equal(t, 3, st.ClientCount)
	require.Equal(t, domain.RoomID("alpha"), st.Rooms[0].ID)
	require.Equal(t, 2, st.Rooms[0].ClientCount)
	require.Equal(t, domain.RoomID("beta"), st.Rooms[1].ID)
	require.Equal(t, 1, st.Rooms[1].ClientCount)
}
