package ws

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tcriess/lightspeed-tabletop/board"
	"github.com/tcriess/lightspeed-tabletop/chat"
	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/fog"
	"github.com/tcriess/lightspeed-tabletop/globals"
	"github.com/tcriess/lightspeed-tabletop/persistence"
	"github.com/tcriess/lightspeed-tabletop/rtc"
	"github.com/tcriess/lightspeed-tabletop/types"
)

const (
	broadcastChannelSize = 1000
	inboundChannelSize   = 1000
)

// Inbound is one typed mutation message on its way into the hub. Client is
// nil for mutations originating from the REST side (status PATCH, channel
// creation), Actor is always set.
type Inbound struct {
	Client  *Client
	Actor   *types.User
	Message types.WireMessage
}

// Outbound is one marshaled message on its way out. Exclude is the
// originating client (which already holds the optimistic local copy),
// TargetFilter optionally restricts delivery to matching clients.
type Outbound struct {
	Name         string
	Data         []byte
	Exclude      *Client
	Source       *types.User
	TargetFilter string
}

// Hub is the per-session broadcast hub and the single authority for who is
// in the session and what they have agreed to see. All state mutations of
// one session are funneled through the Run loop, which is the per-session
// serialization point.
type Hub struct {
	Session *types.Session

	// Registered clients.
	clients map[*Client]struct{}

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan Inbound
	Broadcast  chan Outbound

	// global configuration
	Cfg *config.Config

	// persistence
	Persister persistence.Persister

	Fog   *fog.Store
	Board *board.Store
	Chat  *chat.Store

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(session *types.Session, cfg *config.Config, persister persistence.Persister) *Hub {
	return &Hub{
		Session:    session,
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan Inbound, inboundChannelSize),
		Broadcast:  make(chan Outbound, broadcastChannelSize),
		Cfg:        cfg,
		Persister:  persister,
		Fog:        fog.NewStore(persister),
		Board:      board.NewStore(persister),
		Chat:       chat.NewStore(persister),
	}
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// ConnectedUsers returns the current presence list.
func (h *Hub) ConnectedUsers() []types.ConnectedUser {
	h.RLock()
	defer h.RUnlock()
	users := make([]types.ConnectedUser, 0, len(h.clients))
	for client := range h.clients {
		users = append(users, client.Presence())
	}
	return users
}

// Notify queues an outbound message for every client except exclude,
// optionally restricted by a target filter. Safe to call from any goroutine.
func (h *Hub) Notify(name string, payload interface{}, exclude *Client, source *types.User, targetFilter string) {
	data, err := types.NewWireMessage(name, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal wire message", "type", name, "error", err)
		return
	}
	h.Broadcast <- Outbound{Name: name, Data: data, Exclude: exclude, Source: source, TargetFilter: targetFilter}
}

// Run is the main hub event loop handling register, unregister, mutation and
// broadcast events.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			// release the registration wait in the ws handler
			client.Done()
			h.handleJoin(client)

		case client := <-h.Unregister:
			go func() {
				h.RLock()
				if _, ok := h.clients[client]; ok {
					h.RUnlock()
					h.Lock()
					delete(h.clients, client)
					client.conn.Close()
					// wait for all loops and write operations to be finished,
					// then it is safe to close the send channel (see
					// https://go101.org/article/channel-closing.html for the
					// trade-offs of this locking approach)
					client.Wait()
					close(client.Send)
					h.Unlock()
					h.Notify(types.MessageTypeUserDisconnected, types.PresencePayload{User: client.Presence()}, nil, client.user, "")
				} else {
					h.RUnlock()
				}
			}()

		case in := <-h.Inbound:
			h.dispatch(in)

		case out := <-h.Broadcast:
			prog := compileTargetFilter(out.TargetFilter)
			if out.TargetFilter != "" && prog == nil {
				// a broken filter must not widen delivery
				continue
			}
			go func(out Outbound) {
				var wg sync.WaitGroup
				h.RLock()
				for client := range h.clients {
					if client == out.Exclude {
						continue
					}
					if !client.RunTargetFilter(prog, out.Name, out.Source) {
						continue
					}
					wg.Add(1)
					client.Add(1)
					go func(c *Client) {
						defer wg.Done()
						defer c.Done()
						c.Send <- out.Data
					}(client)
				}
				wg.Wait()
				h.RUnlock()
			}(out)
		}
	}
}

// handleJoin runs in the hub loop directly after a client was registered:
// invited users are promoted to participants, the rest of the session learns
// about the new connection, and the new connection receives the full
// session:state snapshot.
func (h *Hub) handleJoin(client *Client) {
	userId := client.user.Id
	if !h.Session.IsParticipant(userId) && h.Session.IsInvited(userId) {
		h.Session.Participants = append(h.Session.Participants, userId)
		invites := h.Session.Invites[:0]
		for _, inv := range h.Session.Invites {
			if inv != userId {
				invites = append(invites, inv)
			}
		}
		h.Session.Invites = invites
		if err := h.Persister.StoreSession(*h.Session); err != nil {
			globals.AppLogger.Error("could not persist participant join", "error", err)
		} else {
			h.Notify(types.MessageTypeParticipantJoined,
				types.ParticipantPayload{SessionId: h.Session.Id, UserId: userId}, client, client.user, "")
		}
	}
	h.Notify(types.MessageTypeUserConnected, types.PresencePayload{User: client.Presence()}, client, client.user, "")
	snapshot, err := h.buildSnapshot(userId)
	if err != nil {
		globals.AppLogger.Error("could not build snapshot", "error", err)
		client.SendError("snapshot", "could not build session state")
		return
	}
	client.SendMessage(types.MessageTypeSessionState, snapshot)
}

// buildSnapshot assembles the full current state for a (re)joining
// connection: session row, fog of the active map, token roster, channel
// views and the presence list. A reconnecting client converges on this
// regardless of how many deltas it missed.
func (h *Hub) buildSnapshot(userId string) (*types.SessionStatePayload, error) {
	snapshot := &types.SessionStatePayload{
		Session:        h.Session,
		Tokens:         []*types.Token{},
		ConnectedUsers: h.ConnectedUsers(),
	}
	if h.Session.ActiveMapId != "" {
		m, err := h.activeMap()
		if err != nil {
			return nil, err
		}
		snapshot.ActiveMap = m
		fs, err := h.Fog.State(h.Session.Id, m)
		if err != nil {
			return nil, err
		}
		snapshot.Fog = fs
		tokens, err := h.Board.Tokens(m.Id)
		if err != nil {
			return nil, err
		}
		snapshot.Tokens = tokens
	}
	main, err := h.Chat.EnsureMainChannel(h.Session)
	if err != nil {
		return nil, err
	}
	channels, err := h.Chat.Channels(h.Session, userId, h.nickOf)
	if err != nil {
		return nil, err
	}
	snapshot.Channels = channels
	history, err := h.Chat.Messages(main.Id, "", h.Cfg.SnapshotHistorySize())
	if err != nil {
		return nil, err
	}
	snapshot.History = history
	return snapshot, nil
}

func (h *Hub) activeMap() (*types.GameMap, error) {
	m := types.GameMap{Id: h.Session.ActiveMapId}
	if err := h.Persister.GetMap(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (h *Hub) mapById(mapId string) (*types.GameMap, error) {
	if mapId == "" {
		mapId = h.Session.ActiveMapId
	}
	if mapId == "" {
		return nil, types.ErrInvalid
	}
	m := types.GameMap{Id: mapId}
	if err := h.Persister.GetMap(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (h *Hub) nickOf(userId string) string {
	user := types.User{Id: userId}
	if h.Persister != nil {
		if err := h.Persister.GetUser(&user); err == nil && user.Nick != "" {
			return user.Nick
		}
	}
	return userId
}

// dispatch authorizes, persists and re-broadcasts one inbound mutation. It
// runs in the hub loop, so all mutations of this session are applied
// strictly in receipt order.
func (h *Hub) dispatch(in Inbound) {
	if h.Session.Ended() {
		h.replyError(in, types.ErrSessionEnded)
		return
	}
	payload, err := types.DecodeInbound(in.Message.Type, in.Message.Payload)
	if err != nil {
		// unknown types and malformed payloads are protocol errors, dropped
		// silently
		globals.AppLogger.Debug("dropping inbound message", "type", in.Message.Type, "error", err)
		return
	}

	switch in.Message.Type {
	case types.MessageTypeSetMap:
		h.handleSessionUpdate(in, func() error {
			p := payload.(*types.SetMapPayload)
			if _, err := h.mapById(p.MapId); err != nil {
				return err
			}
			h.Session.ActiveMapId = p.MapId
			h.Session.ActiveBackdropId = ""
			return nil
		})

	case types.MessageTypeSetBackdrop:
		h.handleSessionUpdate(in, func() error {
			h.Session.ActiveBackdropId = payload.(*types.SetBackdropPayload).BackdropId
			h.Session.ActiveMapId = ""
			return nil
		})

	case types.MessageTypeClearDisplay:
		h.handleSessionUpdate(in, func() error {
			h.Session.ActiveMapId = ""
			h.Session.ActiveBackdropId = ""
			return nil
		})

	case types.MessageTypeSetStatus:
		status := payload.(*types.SetStatusPayload).Status
		h.handleSessionUpdate(in, func() error {
			if !h.Session.CanTransition(status) {
				return types.ErrInvalid
			}
			h.Session.Status = status
			return nil
		})
		if h.Session.Ended() {
			h.CloseAll()
		}

	case types.MessageTypeFogReveal:
		p := payload.(*types.FogRevealPayload)
		h.handleFog(in, p.MapId, func(m *types.GameMap) ([]types.CellCoord, error) {
			return h.Fog.Reveal(h.Session.Id, m, p.Cells)
		})

	case types.MessageTypeFogRevealAll:
		p := payload.(*types.FogMapPayload)
		h.handleFog(in, p.MapId, func(m *types.GameMap) ([]types.CellCoord, error) {
			return h.Fog.RevealAll(h.Session.Id, m)
		})

	case types.MessageTypeFogHideAll:
		p := payload.(*types.FogMapPayload)
		if !h.Session.IsDM(in.Actor.Id) {
			h.replyError(in, types.ErrUnauthorized)
			return
		}
		m, err := h.mapById(p.MapId)
		if err != nil {
			h.replyError(in, err)
			return
		}
		if err := h.Fog.HideAll(h.Session.Id, m); err != nil {
			h.replyError(in, err)
			return
		}
		h.Notify(types.MessageTypeFogState, types.FogStatePayload{MapId: m.Id, Reset: true}, in.Client, in.Actor, "")

	case types.MessageTypeTokenPlace:
		p := payload.(*types.TokenPlacePayload)
		m, err := h.mapById("")
		if err != nil {
			h.replyError(in, err)
			return
		}
		token, err := h.Board.Place(h.Session, in.Actor, m, p)
		if err != nil {
			h.replyError(in, err)
			return
		}
		h.Notify(types.MessageTypeTokenState, types.TokenStatePayload{Action: "place", Token: token}, in.Client, in.Actor, "")

	case types.MessageTypeTokenMove:
		p := payload.(*types.TokenMovePayload)
		m, err := h.mapById("")
		if err != nil {
			h.replyError(in, err)
			return
		}
		token, err := h.Board.Move(h.Session, in.Actor, m, p.TokenId, p.Position)
		if err != nil {
			h.replyError(in, err)
			return
		}
		h.Notify(types.MessageTypeTokenState, types.TokenStatePayload{Action: "move", Token: token}, in.Client, in.Actor, "")

	case types.MessageTypeTokenRemove:
		p := payload.(*types.TokenRemovePayload)
		m, err := h.mapById("")
		if err != nil {
			h.replyError(in, err)
			return
		}
		token, err := h.Board.Remove(h.Session, in.Actor, m, p.TokenId)
		if err != nil {
			h.replyError(in, err)
			return
		}
		h.Notify(types.MessageTypeTokenState, types.TokenStatePayload{Action: "remove", Token: token}, in.Client, in.Actor, "")

	case types.MessageTypeChatMessage:
		p := payload.(*types.ChatSendPayload)
		message, err := h.Chat.Send(h.Session, in.Actor, p.ChannelId, p.Content)
		if err != nil {
			h.replyError(in, err)
			return
		}
		channel := types.ChatChannel{Id: p.ChannelId}
		if err := h.Persister.GetChannel(&channel); err != nil {
			h.replyError(in, err)
			return
		}
		h.Notify(types.MessageTypeChatMessage, message, in.Client, in.Actor, ChannelTargetFilter(&channel))

	case types.MessageTypeChatMarkRead:
		p := payload.(*types.ChatMarkReadPayload)
		if err := h.Chat.MarkRead(p.ChannelId, in.Actor.Id); err != nil {
			h.replyError(in, err)
		}

	case types.MessageTypeRTCOffer, types.MessageTypeRTCAnswer, types.MessageTypeRTCICECandidate:
		p := payload.(*types.RTCSignalPayload)
		if err := rtc.ValidateSignal(in.Actor.Id, p); err != nil {
			h.replyError(in, err)
			return
		}
		p.FromUserId = in.Actor.Id
		// fire-and-forget relay to the addressed participant only
		h.Notify(in.Message.Type, p, in.Client, in.Actor, userTargetFilter(p.TargetUserId))

	case types.MessageTypeRTCMuteState:
		p := payload.(*types.RTCMuteStatePayload)
		p.UserId = in.Actor.Id
		h.Notify(types.MessageTypeRTCMuteState, p, in.Client, in.Actor, "")

	default:
		globals.AppLogger.Debug("dropping unhandled inbound message", "type", in.Message.Type)
	}
}

// handleSessionUpdate applies a DM-only session mutation and broadcasts
// session:updated.
func (h *Hub) handleSessionUpdate(in Inbound, mutate func() error) {
	if !h.Session.IsDM(in.Actor.Id) {
		h.replyError(in, types.ErrUnauthorized)
		return
	}
	before := *h.Session
	if err := mutate(); err != nil {
		*h.Session = before
		h.replyError(in, err)
		return
	}
	if err := h.Persister.StoreSession(*h.Session); err != nil {
		*h.Session = before
		h.replyError(in, err)
		return
	}
	h.Notify(types.MessageTypeSessionUpdated, types.SessionUpdatedPayload{Session: h.Session}, in.Client, in.Actor, "")
}

func (h *Hub) handleFog(in Inbound, mapId string, op func(*types.GameMap) ([]types.CellCoord, error)) {
	if !h.Session.IsDM(in.Actor.Id) {
		h.replyError(in, types.ErrUnauthorized)
		return
	}
	m, err := h.mapById(mapId)
	if err != nil {
		h.replyError(in, err)
		return
	}
	delta, err := op(m)
	if err != nil {
		h.replyError(in, err)
		return
	}
	if len(delta) == 0 {
		// already fully revealed, nothing to broadcast
		return
	}
	h.Notify(types.MessageTypeFogState, types.FogStatePayload{MapId: m.Id, Revealed: delta}, in.Client, in.Actor, "")
}

func (h *Hub) replyError(in Inbound, err error) {
	if in.Client == nil {
		return
	}
	code := "internal"
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		code = "unauthorized"
	case errors.Is(err, types.ErrSessionEnded):
		code = "session_ended"
	case errors.Is(err, types.ErrNotFound):
		code = "not_found"
	case errors.Is(err, types.ErrInvalid):
		code = "invalid"
	}
	in.Client.SendError(code, err.Error())
}

// CloseAll closes every remaining connection, used when the session ends.
func (h *Hub) CloseAll() {
	h.RLock()
	defer h.RUnlock()
	for client := range h.clients {
		client.conn.Close()
	}
}

// userTargetFilter restricts delivery to a single user.
func userTargetFilter(userId string) string {
	return fmt.Sprintf("Target.Id == %s", strconv.Quote(userId))
}

// ChannelTargetFilter restricts delivery to the participants of a private
// channel. The main channel is unfiltered.
func ChannelTargetFilter(channel *types.ChatChannel) string {
	if channel.IsMain {
		return ""
	}
	quoted := make([]string, 0, len(channel.Participants))
	for _, p := range channel.Participants {
		quoted = append(quoted, strconv.Quote(p))
	}
	return fmt.Sprintf("Target.Id in [%s]", strings.Join(quoted, ", "))
}
