package persistence

import (
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/types"
)

// Persister is the storage interface of the real-time layer. The get-by-id
// methods fill the passed struct in place (the id must be set) and return
// types.ErrNotFound if no row exists.
type Persister interface {
	StoreSession(types.Session) error
	GetSession(*types.Session) error
	GetSessions() ([]*types.Session, error)

	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUsers() ([]*types.User, error)

	StoreMap(types.GameMap) error
	GetMap(*types.GameMap) error

	GetFogState(*types.FogState) error
	StoreFogState(types.FogState) error
	DeleteFogStates(kind types.ScopeKind, ownerId string) error

	StoreToken(types.Token) error
	GetToken(*types.Token) error
	GetTokens(mapId string) ([]*types.Token, error)
	DeleteToken(*types.Token) error

	StoreChannel(types.ChatChannel) error
	GetChannel(*types.ChatChannel) error
	GetChannels(sessionId string) ([]*types.ChatChannel, error)

	StoreMessage(types.ChatMessage) error
	// GetMessages returns up to limit messages of the channel, newest first,
	// strictly older than the before message (cursor pagination). An empty
	// before starts at the newest message.
	GetMessages(channelId string, before string, limit int) ([]*types.ChatMessage, error)
	// CountMessagesSince counts messages in the channel created after the
	// given time, excluding those sent by excludeSender. This seeds unread
	// counters from the persisted read markers.
	CountMessagesSince(channelId string, since time.Time, excludeSender string) (int, error)

	StoreReadMarker(types.ReadMarker) error
	GetReadMarker(*types.ReadMarker) error

	Close() error
}

// NewPersister creates the persister selected by the configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	case "buntdb":
		return NewBuntPersister(cfg)
	case "":
		return nil, nil // no persistence configured
	}
	return nil, fmt.Errorf("invalid persistence type %q", cfg.PersistenceConfig.Type)
}
