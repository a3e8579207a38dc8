package signal

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/okteva/conclave/internal/app"
	"github.com/okteva/conclave/internal/config"
	"github.com/okteva/conclave/internal/core"
	"github.com/okteva/conclave/internal/crdt/deltalog"
	"github.com/okteva/conclave/internal/media"
	"github.com/okteva/conclave/internal/media/mediatest"
)

func newSignalServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := mediatest.NewEngine()
	pool, err := media.NewWorkerPool(engine, 1, func(error) {})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	orch := &app.Orchestrator{
		Rooms:    core.NewRegistry(pool, deltalog.New(), core.NewSnapshotStore(t.TempDir())),
		Sessions: app.NewSessionRegistry(),
	}
	ctl := NewController(orch, &config.Config{ReadLimit: 1 << 20, PingPeriod: 50 * time.Second})

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", c.Query("peer"))
		ctl.HandleWS(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, peer string) *wsClient {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?peer=" + peer
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &wsClient{t: t, ws: ws}
}

func (c *wsClient) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(v))
}

func (c *wsClient) next() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var m map[string]any
	require.NoError(c.t, c.ws.ReadJSON(&m))
	return m
}

// expectResponse reads until the response for op arrives, skipping
// interleaved notifications, and asserts it succeeded.
func (c *wsClient) expectResponse(op string) map[string]any {
	c.t.Helper()
	for {
		m := c.next()
		if m["type"] == "response" && m["op"] == op {
			require.Equal(c.t, true, m["success"], "op %s failed: %v", op, m["error"])
			return m
		}
	}
}

// expectEvent reads until a notification of the given type arrives.
func (c *wsClient) expectEvent(typ string) map[string]any {
	c.t.Helper()
	for {
		m := c.next()
		if m["type"] == typ {
			return m
		}
	}
}

func (c *wsClient) join(room string) {
	c.t.Helper()
	c.send(map[string]any{"type": "join", "room": room})
	c.expectResponse("join")
}

func TestProducerBroadcasts(t *testing.T) {
	srv := newSignalServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	alice.join("standup")
	bob.join("standup")

	alice.send(map[string]any{"type": "create-transport", "room": "standup", "direction": "send"})
	resp := alice.expectResponse("create-transport")
	tid := resp["data"].(map[string]any)["id"].(string)

	alice.send(map[string]any{
		"type":         "produce",
		"room":         "standup",
		"transport_id": tid,
		"kind":         "video",
		"codec":        map[string]any{"mimeType": "video/VP8", "clockRate": 90000},
		"app_data":     map[string]any{"role": "camera"},
	})
	resp = alice.expectResponse("produce")
	pid := resp["data"].(map[string]any)["producer_id"].(string)

	ev := bob.expectEvent("new-producer")
	require.Equal(t, pid, ev["producer_id"])
	require.Equal(t, "alice", ev["peer_id"])
	require.Equal(t, "camera", ev["app_data"].(map[string]any)["role"])

	alice.send(map[string]any{"type": "close-producer", "room": "standup", "producer_id": pid})
	alice.expectResponse("close-producer")

	ev = bob.expectEvent("producer-closed")
	require.Equal(t, pid, ev["producer_id"])
	require.Equal(t, "alice", ev["peer_id"])
}

func TestPeerLeftBroadcast(t *testing.T) {
	srv := newSignalServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	alice.join("standup")
	bob.join("standup")

	require.NoError(t, alice.ws.Close())

	ev := bob.expectEvent("peer-left")
	require.Equal(t, "alice", ev["peer_id"])
}

func TestDocumentUpdateFanout(t *testing.T) {
	srv := newSignalServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	alice.join("standup")
	bob.join("standup")

	alice.send(map[string]any{"type": "join-documents", "room": "standup"})
	alice.expectResponse("join-documents")
	bob.send(map[string]any{"type": "join-documents", "room": "standup"})
	bob.expectResponse("join-documents")
	alice.expectEvent("doc-user-joined")

	update := base64.StdEncoding.EncodeToString([]byte("delta: insert 'hi'"))
	alice.send(map[string]any{"type": "update-document", "room": "standup", "doc_id": 0, "update": update})
	alice.expectResponse("update-document")

	ev := bob.expectEvent("document-updated")
	require.Equal(t, float64(0), ev["doc_id"])
	require.Equal(t, update, ev["update"])
	require.Equal(t, "alice", ev["from"])
}
