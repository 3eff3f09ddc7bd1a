// Package client implements the connection manager used by Go clients of the
// tabletop service: it exchanges a short-lived REST-issued token for a
// websocket connection, keeps the connection alive and reconnects with
// exponential backoff.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-tabletop/globals"
	"github.com/tcriess/lightspeed-tabletop/types"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

const (
	defaultPingInterval = 30 * time.Second
	defaultBackoffBase  = time.Second
	defaultBackoffCap   = 30 * time.Second
	dialTimeout         = 10 * time.Second
	writeTimeout        = 10 * time.Second
)

// Config configures a session connection.
type Config struct {
	// BaseURL of the service, f.e. "https://play.example.com"
	BaseURL string
	// AuthHeader is passed on the ws-token request (the external cookie/OIDC
	// layer decides what it means).
	AuthHeader string
	HTTPClient *http.Client

	PingInterval time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration

	// OnMessage receives every structured inbound message. Malformed payloads
	// are dropped silently before this is called.
	OnMessage func(types.WireMessage)
	// OnState receives connection state changes.
	OnState func(State)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.HTTPClient == nil {
		out.HTTPClient = http.DefaultClient
	}
	if out.PingInterval <= 0 {
		out.PingInterval = defaultPingInterval
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = defaultBackoffBase
	}
	if out.BackoffCap <= 0 {
		out.BackoffCap = defaultBackoffCap
	}
	return out
}

// Backoff computes the reconnect delay for the given attempt counter:
// min(base * 2^attempt, cap).
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

// Conn is a handle on one managed session connection. The lifecycle is owned
// by whoever holds the handle: Open starts the manage loop, Close tears
// everything down.
type Conn struct {
	cfg       Config
	sessionId string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ws      *websocket.Conn
	enabled bool
	attempt int
	state   State

	// writeMu serializes all frame writers on the live socket, the websocket
	// connection supports at most one concurrent writer.
	writeMu sync.Mutex
}

// Open connects to the session and returns a handle. The connection is kept
// alive and re-established with backoff until Close is called or the context
// is cancelled.
func Open(ctx context.Context, cfg Config, sessionId string) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		cfg:       cfg.withDefaults(),
		sessionId: sessionId,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
	}
	go c.manage()
	return c
}

// Close immediately and idempotently tears down the live connection and
// cancels any pending reconnect timers.
func (c *Conn) Close() {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = false
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	c.cancel()
	if ws != nil {
		_ = ws.Close()
	}
	c.setState(StateDisconnected)
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send marshals and sends one mutation message. It fails when the connection
// is not currently open, the caller retries after reconnect.
func (c *Conn) Send(msgType string, payload interface{}) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("not connected")
	}
	data, err := types.NewWireMessage(msgType, payload)
	if err != nil {
		return err
	}
	return c.write(ws, data)
}

func (c *Conn) write(ws *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	cb := c.cfg.OnState
	c.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

// manage is the single goroutine owning connect/reconnect. Every exit path
// of one connection round leads back here, so timers cannot leak past a
// teardown.
func (c *Conn) manage() {
	for {
		if c.ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		ws, err := c.dial()
		if err != nil {
			globals.AppLogger.Debug("connect failed", "error", err)
			c.mu.Lock()
			attempt := c.attempt
			c.attempt++
			c.mu.Unlock()
			delay := Backoff(attempt, c.cfg.BackoffBase, c.cfg.BackoffCap)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		c.mu.Lock()
		if !c.enabled {
			c.mu.Unlock()
			_ = ws.Close()
			return
		}
		// a re-entrant connect must never leave two live sockets behind
		if c.ws != nil {
			_ = c.ws.Close()
		}
		c.ws = ws
		c.attempt = 0
		c.mu.Unlock()
		c.setState(StateConnected)

		c.serve(ws)

		c.mu.Lock()
		if c.ws == ws {
			c.ws = nil
		}
		enabled := c.enabled
		c.mu.Unlock()
		_ = ws.Close()
		c.setState(StateDisconnected)
		if !enabled || c.ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		attempt := c.attempt
		c.attempt++
		c.mu.Unlock()
		delay := Backoff(attempt, c.cfg.BackoffBase, c.cfg.BackoffCap)
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// dial fetches a fresh short-lived token and opens the websocket with it.
func (c *Conn) dial() (*websocket.Conn, error) {
	token, err := c.fetchToken()
	if err != nil {
		return nil, err
	}
	wsURL, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws/sessions/" + c.sessionId
	wsURL.RawQuery = url.Values{"token": []string{token}}.Encode()
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(c.ctx, wsURL.String(), nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	return conn, err
}

func (c *Conn) fetchToken() (string, error) {
	tokenURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/api/sessions/" + c.sessionId + "/ws-token"
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return "", err
	}
	if c.cfg.AuthHeader != "" {
		req.Header.Set("Authorization", c.cfg.AuthHeader)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ws-token request failed: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}
	tokenResp := struct {
		Token string `json:"token"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	if tokenResp.Token == "" {
		return "", fmt.Errorf("empty token")
	}
	return tokenResp.Token, nil
}

// serve reads inbound messages and keeps the connection alive until it
// breaks or the handle is closed.
func (c *Conn) serve(ws *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	// keepalive ping on a fixed interval, stopped on every exit path
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				data, err := types.NewWireMessage(types.MessageTypePing, nil)
				if err != nil {
					return
				}
				if err := c.write(ws, data); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		message := types.WireMessage{}
		if err := json.Unmarshal(raw, &message); err != nil || message.Type == "" {
			// malformed inbound payloads are dropped silently
			continue
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(message)
		}
	}
}
