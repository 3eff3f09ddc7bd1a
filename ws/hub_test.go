package ws

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/persistence"
	"github.com/tcriess/lightspeed-tabletop/types"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}}
	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = persister.Close() })
	session := &types.Session{
		Id:           "s1",
		Status:       types.SessionActive,
		DmId:         "dm",
		ActiveMapId:  "m1",
		Participants: []string{"alice"},
	}
	if err := persister.StoreSession(*session); err != nil {
		t.Fatal(err)
	}
	if err := persister.StoreMap(types.GameMap{Id: "m1", Grid: types.GridSquare, Cols: 10, Rows: 10}); err != nil {
		t.Fatal(err)
	}
	hub := NewHub(session, cfg, persister)
	go hub.Run()
	return hub
}

// connect runs one full client connection against the hub exactly like the
// websocket handler does and returns the peer end of the socket, so tests
// observe what a real connection would receive.
func connect(t *testing.T, hub *Hub, user *types.User) *websocket.Conn {
	t.Helper()
	serverConns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)
	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = peer.Close() })
	serverConn := <-serverConns

	doneChan := make(chan struct{})
	c := NewClient(hub, serverConn, user, doneChan)
	c.Add(1)
	hub.Register <- c
	c.Wait()
	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()
	go func() {
		<-doneChan
		hub.Unregister <- c
	}()
	return peer
}

func writeWire(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := types.NewWireMessage(msgType, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

// readWire returns the next message or nil when nothing arrives in time.
func readWire(t *testing.T, conn *websocket.Conn, timeout time.Duration) *types.WireMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	message := types.WireMessage{}
	if err := json.Unmarshal(raw, &message); err != nil {
		t.Fatal(err)
	}
	return &message
}

func awaitType(t *testing.T, conn *websocket.Conn, msgType string) *types.WireMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		message := readWire(t, conn, time.Until(deadline))
		if message == nil {
			break
		}
		if message.Type == msgType {
			return message
		}
	}
	t.Fatalf("did not receive %s in time", msgType)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestFogRevealRequiresDM(t *testing.T) {
	hub := newTestHub(t)
	dmPeer := connect(t, hub, &types.User{Id: "dm", Nick: "DM"})
	awaitType(t, dmPeer, types.MessageTypeSessionState)
	alicePeer := connect(t, hub, &types.User{Id: "alice", Nick: "Alice"})
	awaitType(t, alicePeer, types.MessageTypeSessionState)
	awaitType(t, dmPeer, types.MessageTypeUserConnected)

	writeWire(t, alicePeer, types.MessageTypeFogReveal, types.FogRevealPayload{
		Cells: []types.CellCoord{types.SquareCell(1, 1)},
	})

	message := awaitType(t, alicePeer, types.MessageTypeError)
	errPayload := types.ErrorPayload{}
	assert.NoError(t, json.Unmarshal(message.Payload, &errPayload))
	assert.Equal(t, "unauthorized", errPayload.Code)

	// the rejected mutation is not broadcast to anyone else
	assert.Nil(t, readWire(t, dmPeer, 150*time.Millisecond))

	// and nothing was revealed
	fs, err := hub.Fog.State("s1", &types.GameMap{Id: "m1", Grid: types.GridSquare, Cols: 10, Rows: 10})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(fs.Revealed))
}

func TestEndedSessionRejectsMutations(t *testing.T) {
	hub := newTestHub(t)
	dmPeer := connect(t, hub, &types.User{Id: "dm", Nick: "DM"})
	awaitType(t, dmPeer, types.MessageTypeSessionState)
	alicePeer := connect(t, hub, &types.User{Id: "alice", Nick: "Alice"})
	awaitType(t, alicePeer, types.MessageTypeSessionState)

	writeWire(t, dmPeer, types.MessageTypeSetStatus, types.SetStatusPayload{Status: types.SessionEnded})
	waitFor(t, func() bool {
		session := types.Session{Id: "s1"}
		if err := hub.Persister.GetSession(&session); err != nil {
			return false
		}
		return session.Status == types.SessionEnded
	})

	// all remaining connections are closed when the session ends
	_ = alicePeer.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := alicePeer.ReadMessage(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				t.Fatal("connection was not closed after session end")
			}
			break
		}
	}

	// a reconnecting client still gets the snapshot but every mutation is
	// rejected
	alicePeer2 := connect(t, hub, &types.User{Id: "alice", Nick: "Alice"})
	awaitType(t, alicePeer2, types.MessageTypeSessionState)
	writeWire(t, alicePeer2, types.MessageTypeChatMessage, types.ChatSendPayload{ChannelId: "whatever", Content: "hello?"})
	message := awaitType(t, alicePeer2, types.MessageTypeError)
	errPayload := types.ErrorPayload{}
	assert.NoError(t, json.Unmarshal(message.Payload, &errPayload))
	assert.Equal(t, "session_ended", errPayload.Code)
}

func TestSnapshotConvergence(t *testing.T) {
	hub := newTestHub(t)
	dmPeer := connect(t, hub, &types.User{Id: "dm", Nick: "DM"})
	message := awaitType(t, dmPeer, types.MessageTypeSessionState)
	snapshot := types.SessionStatePayload{}
	assert.NoError(t, json.Unmarshal(message.Payload, &snapshot))
	if len(snapshot.Channels) != 1 {
		t.Fatalf("expected exactly the main channel, got %d channels", len(snapshot.Channels))
	}
	mainId := snapshot.Channels[0].Id

	writeWire(t, dmPeer, types.MessageTypeTokenPlace, types.TokenPlacePayload{
		Type:     types.TokenNPC,
		Name:     "goblin",
		Position: types.SquareCell(2, 2),
	})
	waitFor(t, func() bool {
		tokens, err := hub.Board.Tokens("m1")
		return err == nil && len(tokens) == 1
	})
	writeWire(t, dmPeer, types.MessageTypeFogReveal, types.FogRevealPayload{
		Cells: []types.CellCoord{types.SquareCell(1, 1), types.SquareCell(2, 2)},
	})
	m := &types.GameMap{Id: "m1", Grid: types.GridSquare, Cols: 10, Rows: 10}
	waitFor(t, func() bool {
		fs, err := hub.Fog.State("s1", m)
		return err == nil && len(fs.Revealed) == 2
	})
	writeWire(t, dmPeer, types.MessageTypeChatMessage, types.ChatSendPayload{ChannelId: mainId, Content: "welcome"})
	waitFor(t, func() bool {
		messages, err := hub.Chat.Messages(mainId, "", 1)
		return err == nil && len(messages) == 1
	})

	// a late joiner converges on the current store state via the snapshot
	// alone
	alicePeer := connect(t, hub, &types.User{Id: "alice", Nick: "Alice"})
	message = awaitType(t, alicePeer, types.MessageTypeSessionState)
	snapshot = types.SessionStatePayload{}
	assert.NoError(t, json.Unmarshal(message.Payload, &snapshot))
	if assert.Equal(t, 1, len(snapshot.Tokens)) {
		assert.True(t, snapshot.Tokens[0].Position.Equal(types.SquareCell(2, 2), types.GridSquare))
	}
	if assert.NotNil(t, snapshot.Fog) {
		assert.Equal(t, 2, len(snapshot.Fog.Revealed))
	}
	if assert.Equal(t, 1, len(snapshot.History)) {
		assert.Equal(t, "welcome", snapshot.History[0].Content)
	}
	for _, view := range snapshot.Channels {
		if view.Id == mainId {
			assert.Equal(t, 1, view.UnreadCount)
		}
	}
	assert.Equal(t, 2, len(snapshot.ConnectedUsers))
}
