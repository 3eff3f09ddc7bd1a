package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-tabletop/globals"
	"github.com/tcriess/lightspeed-tabletop/types"
)

const (
	sendChannelSize = 256
	maxMessageSize  = 65536
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	user        *types.User
	connectedAt time.Time

	doneChan chan struct{}

	// WaitGroup which keeps track of running read/write loops and write access
	// to Send. If the WaitGroup is done, it is safe to close all channels (all
	// loops are done and there are no more write operations on the channels)
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, user *types.User, doneChan chan struct{}) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		Send:        make(chan []byte, sendChannelSize),
		user:        user,
		connectedAt: time.Now(),
		doneChan:    doneChan,
	}
}

func (c *Client) User() *types.User { return c.user }

func (c *Client) Presence() types.ConnectedUser {
	return types.ConnectedUser{
		UserId:      c.user.Id,
		Nick:        c.user.Nick,
		AvatarUrl:   c.user.AvatarUrl,
		ConnectedAt: c.connectedAt,
	}
}

// send queues data for this client if it is still registered. Must not be
// called from the hub run loop itself (it takes the hub read lock).
func (c *Client) send(data []byte) {
	c.hub.RLock()
	if _, ok := c.hub.clients[c]; ok {
		c.Send <- data
	}
	c.hub.RUnlock()
}

// SendMessage marshals a wire message and queues it for this client.
func (c *Client) SendMessage(msgType string, payload interface{}) {
	data, err := types.NewWireMessage(msgType, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal wire message", "type", msgType, "error", err)
		return
	}
	c.Add(1)
	go func() {
		defer c.Done()
		c.send(data)
	}()
}

// SendError reports a rejected mutation back to the originating client only.
func (c *Client) SendError(code, message string) {
	c.SendMessage(types.MessageTypeError, types.ErrorPayload{Code: code, Message: message})
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpected", "error", err)
			}
			return
		}

		message := types.WireMessage{}
		if err := json.Unmarshal(raw, &message); err != nil || message.Type == "" {
			// malformed payloads are dropped silently, never tear down the
			// connection for a protocol error
			globals.AppLogger.Debug("dropping malformed ws message", "error", err)
			continue
		}

		if message.Type == types.MessageTypePing {
			// application-level keepalive, nothing to dispatch
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}

		c.hub.Inbound <- Inbound{Client: c, Actor: c.user, Message: message}
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case <-c.doneChan:
			return
		default:
		}
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
