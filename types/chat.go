package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"gorm.io/datatypes"
)

type ChatMessageType string

const (
	ChatMessageText ChatMessageType = "text"
	ChatMessageRoll ChatMessageType = "dice-roll"
)

const (
	CriticalNone    = ""
	CriticalNatOne  = "nat1"
	CriticalNatMax  = "nat20"
)

// ChatChannel is either the single main channel of a session (implicitly
// including every participant plus the DM) or an ad-hoc private channel with
// an explicit participant list.
type ChatChannel struct {
	Id           string                      `json:"id" gorm:"primaryKey"`
	SessionId    string                      `json:"session_id" gorm:"index"`
	IsMain       bool                        `json:"is_main"`
	Name         string                      `json:"name,omitempty"`
	Participants datatypes.JSONSlice[string] `json:"participants"`
	CreatedAt    time.Time                   `json:"created_at"`
}

func (c *ChatChannel) HasParticipant(userId string) bool {
	for _, p := range c.Participants {
		if p == userId {
			return true
		}
	}
	return false
}

// DisplayName resolves the channel name shown to viewerId. Two-participant
// channels are whispers and always show the counterpart's nick, explicit
// names only apply to channels with more than two participants.
func (c *ChatChannel) DisplayName(viewerId string, nickOf func(userId string) string) string {
	if c.IsMain {
		return "main"
	}
	if len(c.Participants) > 2 && c.Name != "" {
		return c.Name
	}
	for _, p := range c.Participants {
		if p != viewerId {
			return nickOf(p)
		}
	}
	return c.Name
}

// ChannelView is the per-user projection of a channel sent on the wire:
// the channel plus the viewer's unread count and a preview of the latest
// message.
type ChannelView struct {
	ChatChannel
	DisplayName        string `json:"display_name"`
	UnreadCount        int    `json:"unread_count"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
}

// ChatMessage is immutable once created, history is append-only and
// paginated by a before-cursor.
type ChatMessage struct {
	Id             string                   `json:"id" gorm:"primaryKey" hash:"ignore"`
	ChannelId      string                   `json:"channel_id" gorm:"index"`
	SenderId       string                   `json:"sender_id"`
	SenderNick     string                   `json:"sender_nick"`
	Type           ChatMessageType          `json:"type"`
	Content        string                   `json:"content"`
	DiceExpression string                   `json:"dice_expression,omitempty"`
	DiceRolls      datatypes.JSONSlice[int] `json:"dice_rolls,omitempty"`
	DiceModifier   int                      `json:"dice_modifier,omitempty"`
	DiceTotal      int                      `json:"dice_total,omitempty"`
	Critical       string                   `json:"critical,omitempty"`
	CreatedAt      time.Time                `json:"created_at" gorm:"index" hash:"string"`
}

// CreateId sets the message id to a hash over the message contents.
func (m *ChatMessage) CreateId() error {
	h, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = fmt.Sprintf("%016x", h)
	return nil
}

// ReadMarker persists the per-user, per-channel last-read position so a
// reconnecting user gets server-seeded unread counts instead of trusting
// ephemeral client state.
type ReadMarker struct {
	UserId     string    `json:"user_id" gorm:"primaryKey"`
	ChannelId  string    `json:"channel_id" gorm:"primaryKey"`
	LastReadId string    `json:"last_read_id"`
	LastReadAt time.Time `json:"last_read_at"`
}
