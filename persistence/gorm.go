package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	return &GormPersist{db: db}, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(&types.User{}, &types.Session{}, &types.GameMap{},
		&types.FogState{}, &types.Token{}, &types.ChatChannel{}, &types.ChatMessage{},
		&types.ReadMarker{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrNotFound
	}
	return err
}

func (p *GormPersist) StoreSession(session types.Session) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&session).Error
}

func (p *GormPersist) GetSession(session *types.Session) error {
	return notFound(p.db.First(session).Error)
}

func (p *GormPersist) GetSessions() ([]*types.Session, error) {
	sessions := make([]*types.Session, 0)
	err := p.db.Find(&sessions).Error
	return sessions, err
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	return notFound(p.db.First(user).Error)
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Find(&users).Error
	return users, err
}

func (p *GormPersist) StoreMap(m types.GameMap) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

func (p *GormPersist) GetMap(m *types.GameMap) error {
	return notFound(p.db.First(m).Error)
}

func (p *GormPersist) GetFogState(fs *types.FogState) error {
	return notFound(p.db.First(fs).Error)
}

func (p *GormPersist) StoreFogState(fs types.FogState) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&fs).Error
}

func (p *GormPersist) DeleteFogStates(kind types.ScopeKind, ownerId string) error {
	return p.db.Where("scope_kind = ? AND owner_id = ?", kind, ownerId).Delete(&types.FogState{}).Error
}

func (p *GormPersist) StoreToken(token types.Token) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&token).Error
}

func (p *GormPersist) GetToken(token *types.Token) error {
	return notFound(p.db.First(token).Error)
}

func (p *GormPersist) GetTokens(mapId string) ([]*types.Token, error) {
	tokens := make([]*types.Token, 0)
	err := p.db.Where("map_id = ?", mapId).Find(&tokens).Error
	return tokens, err
}

func (p *GormPersist) DeleteToken(token *types.Token) error {
	return p.db.Delete(token).Error
}

func (p *GormPersist) StoreChannel(channel types.ChatChannel) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&channel).Error
}

func (p *GormPersist) GetChannel(channel *types.ChatChannel) error {
	return notFound(p.db.First(channel).Error)
}

func (p *GormPersist) GetChannels(sessionId string) ([]*types.ChatChannel, error) {
	channels := make([]*types.ChatChannel, 0)
	err := p.db.Where("session_id = ?", sessionId).Order("created_at ASC").Find(&channels).Error
	return channels, err
}

func (p *GormPersist) StoreMessage(message types.ChatMessage) error {
	return p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&message).Error
}

func (p *GormPersist) GetMessages(channelId string, before string, limit int) ([]*types.ChatMessage, error) {
	messages := make([]*types.ChatMessage, 0)
	q := p.db.Where("channel_id = ?", channelId)
	if before != "" {
		cursor := types.ChatMessage{Id: before}
		if err := notFound(p.db.First(&cursor).Error); err != nil {
			return nil, err
		}
		q = q.Where("created_at < ?", cursor.CreatedAt)
	}
	err := q.Order("created_at DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

func (p *GormPersist) CountMessagesSince(channelId string, since time.Time, excludeSender string) (int, error) {
	var count int64
	err := p.db.Model(&types.ChatMessage{}).
		Where("channel_id = ? AND created_at > ? AND sender_id <> ?", channelId, since, excludeSender).
		Count(&count).Error
	return int(count), err
}

func (p *GormPersist) StoreReadMarker(marker types.ReadMarker) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&marker).Error
}

func (p *GormPersist) GetReadMarker(marker *types.ReadMarker) error {
	return notFound(p.db.First(marker).Error)
}

func (p *GormPersist) Close() error {
	return nil
}
