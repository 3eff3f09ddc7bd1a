package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/types"
	"github.com/tidwall/buntdb"
)

// BuntDBPersist is the single-file fallback persister. Values are stored as
// JSON under typed key prefixes, message history is indexed by creation time.
type BuntDBPersist struct {
	db   *buntdb.DB
	lock *flock.Flock
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	dsn := cfg.PersistenceConfig.DSN
	if dsn == "" {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	var fileLock *flock.Flock
	if dsn != ":memory:" {
		fileLock = flock.New(dsn + ".lock")
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, fmt.Errorf("database %s is locked by another process", dsn)
		}
	}
	db, err := buntdb.Open(dsn)
	if err != nil {
		if fileLock != nil {
			fileLock.Unlock()
		}
		return nil, err
	}
	err = db.CreateIndex("messagests", "message:*", buntdb.IndexJSON("created_at"))
	if err != nil {
		db.Close()
		if fileLock != nil {
			fileLock.Unlock()
		}
		return nil, err
	}
	return &BuntDBPersist{db: db, lock: fileLock}, nil
}

func (p *BuntDBPersist) set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) get(key string, v interface{}) error {
	err := p.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(key)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), v)
	})
	if err == buntdb.ErrNotFound {
		return types.ErrNotFound
	}
	return err
}

// list unmarshals every value whose key starts with prefix via the visit
// callback (called with the raw JSON value).
func (p *BuntDBPersist) list(prefix string, visit func(val string) error) error {
	return p.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		err := tx.AscendKeys(prefix+"*", func(key, val string) bool {
			innerErr = visit(val)
			return innerErr == nil
		})
		if err != nil {
			return err
		}
		return innerErr
	})
}

func (p *BuntDBPersist) StoreSession(session types.Session) error {
	return p.set("session:"+session.Id, session)
}

func (p *BuntDBPersist) GetSession(session *types.Session) error {
	if session.Id == "" {
		return fmt.Errorf("no session id")
	}
	return p.get("session:"+session.Id, session)
}

func (p *BuntDBPersist) GetSessions() ([]*types.Session, error) {
	sessions := make([]*types.Session, 0)
	err := p.list("session:", func(val string) error {
		session := &types.Session{}
		if err := json.Unmarshal([]byte(val), session); err != nil {
			return err
		}
		sessions = append(sessions, session)
		return nil
	})
	return sessions, err
}

func (p *BuntDBPersist) StoreUser(user types.User) error {
	return p.set("user:"+user.Id, user)
}

func (p *BuntDBPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.get("user:"+user.Id, user)
}

func (p *BuntDBPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.list("user:", func(val string) error {
		user := &types.User{}
		if err := json.Unmarshal([]byte(val), user); err != nil {
			return err
		}
		users = append(users, user)
		return nil
	})
	return users, err
}

func (p *BuntDBPersist) StoreMap(m types.GameMap) error {
	return p.set("map:"+m.Id, m)
}

func (p *BuntDBPersist) GetMap(m *types.GameMap) error {
	if m.Id == "" {
		return fmt.Errorf("no map id")
	}
	return p.get("map:"+m.Id, m)
}

func fogKey(kind types.ScopeKind, ownerId, mapId string) string {
	return fmt.Sprintf("fog:%s:%s:%s", kind, ownerId, mapId)
}

func (p *BuntDBPersist) GetFogState(fs *types.FogState) error {
	return p.get(fogKey(fs.ScopeKind, fs.OwnerId, fs.MapId), fs)
}

func (p *BuntDBPersist) StoreFogState(fs types.FogState) error {
	return p.set(fogKey(fs.ScopeKind, fs.OwnerId, fs.MapId), fs)
}

func (p *BuntDBPersist) DeleteFogStates(kind types.ScopeKind, ownerId string) error {
	prefix := fmt.Sprintf("fog:%s:%s:", kind, ownerId)
	return p.db.Update(func(tx *buntdb.Tx) error {
		keys := make([]string, 0)
		err := tx.AscendKeys(prefix+"*", func(key, val string) bool {
			keys = append(keys, key)
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) StoreToken(token types.Token) error {
	return p.set(fmt.Sprintf("token:%s:%s", token.MapId, token.Id), token)
}

func (p *BuntDBPersist) GetToken(token *types.Token) error {
	if token.Id == "" {
		return fmt.Errorf("no token id")
	}
	if token.MapId != "" {
		return p.get(fmt.Sprintf("token:%s:%s", token.MapId, token.Id), token)
	}
	// map unknown, scan
	found := false
	err := p.list("token:", func(val string) error {
		if found {
			return nil
		}
		t := types.Token{}
		if err := json.Unmarshal([]byte(val), &t); err != nil {
			return err
		}
		if t.Id == token.Id {
			*token = t
			found = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return types.ErrNotFound
	}
	return nil
}

func (p *BuntDBPersist) GetTokens(mapId string) ([]*types.Token, error) {
	tokens := make([]*types.Token, 0)
	err := p.list("token:"+mapId+":", func(val string) error {
		token := &types.Token{}
		if err := json.Unmarshal([]byte(val), token); err != nil {
			return err
		}
		tokens = append(tokens, token)
		return nil
	})
	return tokens, err
}

func (p *BuntDBPersist) DeleteToken(token *types.Token) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(fmt.Sprintf("token:%s:%s", token.MapId, token.Id))
		return err
	})
	if err == buntdb.ErrNotFound {
		return types.ErrNotFound
	}
	return err
}

func (p *BuntDBPersist) StoreChannel(channel types.ChatChannel) error {
	return p.set("channel:"+channel.Id, channel)
}

func (p *BuntDBPersist) GetChannel(channel *types.ChatChannel) error {
	if channel.Id == "" {
		return fmt.Errorf("no channel id")
	}
	return p.get("channel:"+channel.Id, channel)
}

func (p *BuntDBPersist) GetChannels(sessionId string) ([]*types.ChatChannel, error) {
	channels := make([]*types.ChatChannel, 0)
	err := p.list("channel:", func(val string) error {
		channel := &types.ChatChannel{}
		if err := json.Unmarshal([]byte(val), channel); err != nil {
			return err
		}
		if channel.SessionId == sessionId {
			channels = append(channels, channel)
		}
		return nil
	})
	return channels, err
}

func messageKey(channelId, id string) string {
	return fmt.Sprintf("message:%s:%s", channelId, id)
}

func (p *BuntDBPersist) StoreMessage(message types.ChatMessage) error {
	return p.set(messageKey(message.ChannelId, message.Id), message)
}

func (p *BuntDBPersist) GetMessages(channelId string, before string, limit int) ([]*types.ChatMessage, error) {
	messages := make([]*types.ChatMessage, 0)
	prefix := "message:" + channelId + ":"
	err := p.db.View(func(tx *buntdb.Tx) error {
		skipping := before != ""
		return tx.Descend("messagests", func(key, val string) bool {
			if !strings.HasPrefix(key, prefix) {
				return true
			}
			if skipping {
				// skip everything down to and including the cursor message
				if key == messageKey(channelId, before) {
					skipping = false
				}
				return true
			}
			message := &types.ChatMessage{}
			if err := json.Unmarshal([]byte(val), message); err == nil {
				messages = append(messages, message)
			}
			return limit <= 0 || len(messages) < limit
		})
	})
	return messages, err
}

func (p *BuntDBPersist) CountMessagesSince(channelId string, since time.Time, excludeSender string) (int, error) {
	count := 0
	prefix := "message:" + channelId + ":"
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend("messagests", func(key, val string) bool {
			if !strings.HasPrefix(key, prefix) {
				return true
			}
			message := types.ChatMessage{}
			if err := json.Unmarshal([]byte(val), &message); err != nil {
				return true
			}
			if !message.CreatedAt.After(since) {
				return false // index is time-ordered, nothing older matches
			}
			if message.SenderId != excludeSender {
				count++
			}
			return true
		})
	})
	return count, err
}

func (p *BuntDBPersist) StoreReadMarker(marker types.ReadMarker) error {
	return p.set(fmt.Sprintf("marker:%s:%s", marker.UserId, marker.ChannelId), marker)
}

func (p *BuntDBPersist) GetReadMarker(marker *types.ReadMarker) error {
	return p.get(fmt.Sprintf("marker:%s:%s", marker.UserId, marker.ChannelId), marker)
}

func (p *BuntDBPersist) Close() error {
	err := p.db.Close()
	if p.lock != nil {
		_ = p.lock.Unlock()
	}
	return err
}
