// Package chat owns the channel registry, message history and unread
// accounting of a session.
package chat

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/tcriess/lightspeed-tabletop/dice"
	"github.com/tcriess/lightspeed-tabletop/persistence"
	"github.com/tcriess/lightspeed-tabletop/types"
)

const (
	DefaultPageSize = 50
	previewLength   = 80
)

type Store struct {
	persister persistence.Persister
	rng       *rand.Rand
}

func NewStore(persister persistence.Persister) *Store {
	return &Store{
		persister: persister,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// EnsureMainChannel creates the session's single main channel if it does not
// exist yet. The main channel implicitly includes every participant plus the
// DM.
func (s *Store) EnsureMainChannel(session *types.Session) (*types.ChatChannel, error) {
	channels, err := s.persister.GetChannels(session.Id)
	if err != nil {
		return nil, err
	}
	for _, c := range channels {
		if c.IsMain {
			return c, nil
		}
	}
	channel := &types.ChatChannel{
		Id:        uuid.NewString(),
		SessionId: session.Id,
		IsMain:    true,
		CreatedAt: time.Now(),
	}
	if err := s.persister.StoreChannel(*channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// CreateChannel creates a private channel with an explicit participant list.
// The creator is always included. Names are only honored for channels with
// more than two participants, two-participant channels are whispers and are
// displayed by the counterpart's nick.
func (s *Store) CreateChannel(session *types.Session, creatorId string, participantIds []string, name string) (*types.ChatChannel, error) {
	participants := []string{creatorId}
	for _, p := range participantIds {
		if p == creatorId {
			continue
		}
		if !session.IsParticipant(p) {
			return nil, types.ErrInvalid
		}
		participants = append(participants, p)
	}
	if len(participants) < 2 {
		return nil, types.ErrInvalid // needs at least one non-self participant
	}
	if len(participants) <= 2 {
		name = ""
	}
	channel := &types.ChatChannel{
		Id:           uuid.NewString(),
		SessionId:    session.Id,
		Name:         name,
		Participants: participants,
		CreatedAt:    time.Now(),
	}
	if err := s.persister.StoreChannel(*channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// Channels lists the channels visible to userId with the per-user unread
// counts (seeded from the persisted read markers) and last-message previews.
func (s *Store) Channels(session *types.Session, userId string, nickOf func(string) string) ([]*types.ChannelView, error) {
	channels, err := s.persister.GetChannels(session.Id)
	if err != nil {
		return nil, err
	}
	views := make([]*types.ChannelView, 0, len(channels))
	for _, c := range channels {
		if !c.IsMain && !c.HasParticipant(userId) {
			continue
		}
		view := &types.ChannelView{ChatChannel: *c, DisplayName: c.DisplayName(userId, nickOf)}
		view.UnreadCount, err = s.Unread(c, userId)
		if err != nil {
			return nil, err
		}
		if latest, err := s.persister.GetMessages(c.Id, "", 1); err == nil && len(latest) > 0 {
			view.LastMessagePreview = preview(latest[0])
		}
		views = append(views, view)
	}
	return views, nil
}

// Send appends a message to the channel. A /roll command is parsed into a
// dice-roll message carrying the individual die results, the modifier and
// the total instead of literal text.
func (s *Store) Send(session *types.Session, sender *types.User, channelId, content string) (*types.ChatMessage, error) {
	channel := types.ChatChannel{Id: channelId}
	if err := s.persister.GetChannel(&channel); err != nil {
		return nil, err
	}
	if channel.SessionId != session.Id {
		return nil, types.ErrInvalid
	}
	if !channel.IsMain && !channel.HasParticipant(sender.Id) {
		return nil, types.ErrUnauthorized
	}
	message := &types.ChatMessage{
		ChannelId:  channelId,
		SenderId:   sender.Id,
		SenderNick: sender.Nick,
		Type:       types.ChatMessageText,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	if roll, ok := dice.Parse(content); ok {
		roll.Throw(s.rng)
		message.Type = types.ChatMessageRoll
		message.DiceExpression = roll.Expression
		message.DiceRolls = roll.Results
		message.DiceModifier = roll.Modifier
		message.DiceTotal = roll.Total
		message.Critical = roll.Critical
	}
	if err := message.CreateId(); err != nil {
		return nil, err
	}
	if err := s.persister.StoreMessage(*message); err != nil {
		return nil, err
	}
	return message, nil
}

// MarkRead zeroes the unread counter for the user/channel pair and persists
// the marker. Idempotent.
func (s *Store) MarkRead(channelId, userId string) error {
	lastReadId := ""
	if latest, err := s.persister.GetMessages(channelId, "", 1); err == nil && len(latest) > 0 {
		lastReadId = latest[0].Id
	}
	return s.persister.StoreReadMarker(types.ReadMarker{
		UserId:     userId,
		ChannelId:  channelId,
		LastReadId: lastReadId,
		LastReadAt: time.Now(),
	})
}

// Unread counts the messages the user has not read yet, excluding the
// user's own.
func (s *Store) Unread(channel *types.ChatChannel, userId string) (int, error) {
	marker := types.ReadMarker{UserId: userId, ChannelId: channel.Id}
	err := s.persister.GetReadMarker(&marker)
	if err != nil && err != types.ErrNotFound {
		return 0, err
	}
	return s.persister.CountMessagesSince(channel.Id, marker.LastReadAt, userId)
}

// Messages returns one page of history, newest first, strictly older than
// the before cursor.
func (s *Store) Messages(channelId, before string, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	return s.persister.GetMessages(channelId, before, limit)
}

func preview(m *types.ChatMessage) string {
	text := m.Content
	if m.Type == types.ChatMessageRoll {
		text = m.SenderNick + " rolled " + m.DiceExpression
	}
	if len(text) > previewLength {
		text = text[:previewLength]
	}
	return text
}
