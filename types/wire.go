package types

import (
	"encoding/json"
	"errors"

	"github.com/mitchellh/mapstructure"
)

// Inbound mutation message types.
const (
	MessageTypePing            = "ping"
	MessageTypeSetMap          = "session:set-map"
	MessageTypeSetBackdrop     = "session:set-backdrop"
	MessageTypeClearDisplay    = "session:clear-display"
	MessageTypeSetStatus       = "session:set-status"
	MessageTypeFogReveal       = "fog:reveal"
	MessageTypeFogRevealAll    = "fog:reveal-all"
	MessageTypeFogHideAll      = "fog:hide-all"
	MessageTypeTokenPlace      = "token:place"
	MessageTypeTokenMove       = "token:move"
	MessageTypeTokenRemove     = "token:remove"
	MessageTypeChatMessage     = "chat:message"
	MessageTypeChatMarkRead    = "chat:mark_read"
	MessageTypeRTCOffer        = "rtc:offer"
	MessageTypeRTCAnswer       = "rtc:answer"
	MessageTypeRTCICECandidate = "rtc:ice-candidate"
	MessageTypeRTCMuteState    = "rtc:mute-state"
)

// Outbound broadcast message types.
const (
	MessageTypeSessionState      = "session:state"
	MessageTypeSessionUpdated    = "session:updated"
	MessageTypeUserConnected     = "user:connected"
	MessageTypeUserDisconnected  = "user:disconnected"
	MessageTypeParticipantJoined = "participant:joined"
	MessageTypeParticipantLeft   = "participant:left"
	MessageTypeFogState          = "fog:state"
	MessageTypeTokenState        = "token:state"
	MessageTypeChatChannels      = "chat:channels"
	MessageTypeChatChannelNew    = "chat:channel_created"
	MessageTypeError             = "error"
)

var ErrUnknownMessageType = errors.New("unknown message type")

// JSON-serialized WireMessage is what is actually sent via the websocket
// connection.
type WireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewWireMessage marshals payload into a ready-to-send envelope.
func NewWireMessage(msgType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(WireMessage{Type: msgType, Payload: raw})
}

// The different inbound payloads.

type SetMapPayload struct {
	MapId string `json:"map_id" mapstructure:"map_id"`
}

type SetBackdropPayload struct {
	BackdropId string `json:"backdrop_id" mapstructure:"backdrop_id"`
}

type SetStatusPayload struct {
	Status SessionStatus `json:"status" mapstructure:"status"`
}

type FogRevealPayload struct {
	MapId string      `json:"map_id" mapstructure:"map_id"`
	Cells []CellCoord `json:"cells" mapstructure:"cells"`
}

type FogMapPayload struct {
	MapId string `json:"map_id" mapstructure:"map_id"`
}

type TokenPlacePayload struct {
	Type        TokenType `json:"type" mapstructure:"type"`
	Name        string    `json:"name" mapstructure:"name"`
	Position    CellCoord `json:"position" mapstructure:"position"`
	Color       string    `json:"color" mapstructure:"color"`
	CharacterId string    `json:"character_id" mapstructure:"character_id"`
	NpcId       string    `json:"npc_id" mapstructure:"npc_id"`
	MonsterId   string    `json:"monster_id" mapstructure:"monster_id"`
}

type TokenMovePayload struct {
	TokenId  string    `json:"token_id" mapstructure:"token_id"`
	Position CellCoord `json:"position" mapstructure:"position"`
}

type TokenRemovePayload struct {
	TokenId string `json:"token_id" mapstructure:"token_id"`
}

type ChatSendPayload struct {
	ChannelId string `json:"channel_id" mapstructure:"channel_id"`
	Content   string `json:"content" mapstructure:"content"`
}

type ChatMarkReadPayload struct {
	ChannelId string `json:"channel_id" mapstructure:"channel_id"`
}

// RTCSignalPayload carries connection-negotiation data between exactly two
// participants. The hub never inspects Data, it only relays it.
type RTCSignalPayload struct {
	FromUserId   string          `json:"from_user_id" mapstructure:"-"`
	TargetUserId string          `json:"target_user_id" mapstructure:"target_user_id"`
	Data         json.RawMessage `json:"data" mapstructure:"-"`
}

type RTCMuteStatePayload struct {
	UserId string `json:"user_id" mapstructure:"-"`
	Muted  bool   `json:"muted" mapstructure:"muted"`
}

// The different outbound payloads.

// SessionStatePayload is the full snapshot sent once per new connection.
// History carries the most recent main-channel messages, newest first.
type SessionStatePayload struct {
	Session        *Session        `json:"session"`
	ActiveMap      *GameMap        `json:"active_map,omitempty"`
	Fog            *FogState       `json:"fog,omitempty"`
	Tokens         []*Token        `json:"tokens"`
	Channels       []*ChannelView  `json:"channels"`
	History        []*ChatMessage  `json:"history"`
	ConnectedUsers []ConnectedUser `json:"connected_users"`
}

type SessionUpdatedPayload struct {
	Session *Session `json:"session"`
}

type PresencePayload struct {
	User ConnectedUser `json:"user"`
}

type ParticipantPayload struct {
	SessionId string `json:"session_id"`
	UserId    string `json:"user_id"`
}

// FogStatePayload is the minimal fog delta: only newly revealed cells, or a
// full reset.
type FogStatePayload struct {
	MapId    string      `json:"map_id"`
	Revealed []CellCoord `json:"revealed,omitempty"`
	Reset    bool        `json:"reset,omitempty"`
}

type TokenStatePayload struct {
	Action string `json:"action"` // place, move, remove
	Token  *Token `json:"token"`
}

type ChatChannelCreatedPayload struct {
	Channel *ChatChannel `json:"channel"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeInbound turns a raw payload into the typed payload struct for the
// given inbound message type. Every consumer switches exhaustively over the
// closed catalogue, a new message kind is a compile-time decision here and
// at each dispatch site.
func DecodeInbound(msgType string, raw json.RawMessage) (interface{}, error) {
	decode := func(out interface{}) error {
		payloadMap := make(map[string]interface{})
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payloadMap); err != nil {
				return err
			}
		}
		return mapstructure.WeakDecode(payloadMap, out)
	}
	switch msgType {
	case MessageTypeSetMap:
		p := SetMapPayload{}
		return &p, decode(&p)
	case MessageTypeSetBackdrop:
		p := SetBackdropPayload{}
		return &p, decode(&p)
	case MessageTypeClearDisplay:
		return &struct{}{}, nil
	case MessageTypeSetStatus:
		p := SetStatusPayload{}
		return &p, decode(&p)
	case MessageTypeFogReveal:
		p := FogRevealPayload{}
		return &p, decode(&p)
	case MessageTypeFogRevealAll, MessageTypeFogHideAll:
		p := FogMapPayload{}
		return &p, decode(&p)
	case MessageTypeTokenPlace:
		p := TokenPlacePayload{}
		return &p, decode(&p)
	case MessageTypeTokenMove:
		p := TokenMovePayload{}
		return &p, decode(&p)
	case MessageTypeTokenRemove:
		p := TokenRemovePayload{}
		return &p, decode(&p)
	case MessageTypeChatMessage:
		p := ChatSendPayload{}
		return &p, decode(&p)
	case MessageTypeChatMarkRead:
		p := ChatMarkReadPayload{}
		return &p, decode(&p)
	case MessageTypeRTCOffer, MessageTypeRTCAnswer, MessageTypeRTCICECandidate:
		p := RTCSignalPayload{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		// the opaque negotiation data must survive the round-trip untouched
		if len(raw) > 0 {
			aux := struct {
				Data json.RawMessage `json:"data"`
			}{}
			if err := json.Unmarshal(raw, &aux); err != nil {
				return nil, err
			}
			p.Data = aux.Data
		}
		return &p, nil
	case MessageTypeRTCMuteState:
		p := RTCMuteStatePayload{}
		return &p, decode(&p)
	}
	return nil, ErrUnknownMessageType
}
