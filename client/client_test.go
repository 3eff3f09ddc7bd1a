package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-tabletop/types"
)

func TestBackoff(t *testing.T) {
	base := time.Second
	cap := 30 * time.Second

	assert.Equal(t, 1*time.Second, Backoff(0, base, cap))
	assert.Equal(t, 2*time.Second, Backoff(1, base, cap))
	assert.Equal(t, 4*time.Second, Backoff(2, base, cap))
	assert.Equal(t, 8*time.Second, Backoff(3, base, cap))
	assert.Equal(t, 16*time.Second, Backoff(4, base, cap))
	assert.Equal(t, 30*time.Second, Backoff(5, base, cap))
	assert.Equal(t, 30*time.Second, Backoff(6, base, cap))
	// no overflow for arbitrarily large attempt counters
	assert.Equal(t, 30*time.Second, Backoff(1000, base, cap))
}

// Send calls racing the keepalive ticker must share one writer, the websocket
// connection allows at most one concurrent writer and panics otherwise.
func TestSendDuringKeepalive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ws-token") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"t"}`))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	connected := make(chan struct{})
	var once sync.Once
	c := Open(context.Background(), Config{
		BaseURL:      srv.URL,
		PingInterval: time.Millisecond,
		OnState: func(s State) {
			if s == StateConnected {
				once.Do(func() { close(connected) })
			}
		},
	}, "s1")
	defer c.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not established")
	}

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := c.Send(types.MessageTypeChatMarkRead, types.ChatMarkReadPayload{ChannelId: "c1"}); err != nil {
			t.Fatal(err)
		}
	}
}
