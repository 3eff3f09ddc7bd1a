// Package board owns the per-map roster of placed tokens.
package board

import (
	"github.com/google/uuid"
	"github.com/tcriess/lightspeed-tabletop/persistence"
	"github.com/tcriess/lightspeed-tabletop/types"
)

type Store struct {
	persister persistence.Persister
}

func NewStore(persister persistence.Persister) *Store {
	return &Store{persister: persister}
}

// Place validates and persists a new token. The store is the sole source of
// truth for the placement invariants, so they are re-validated against the
// current roster on every request: at most one PC token per character and at
// most one PARTY token per map (hex maps only).
func (s *Store) Place(session *types.Session, actor *types.User, m *types.GameMap, req *types.TokenPlacePayload) (*types.Token, error) {
	if !session.IsDM(actor.Id) && req.Type != types.TokenPC {
		return nil, types.ErrUnauthorized
	}
	if !m.Contains(req.Position) {
		return nil, types.ErrInvalid
	}
	tokens, err := s.persister.GetTokens(m.Id)
	if err != nil {
		return nil, err
	}
	switch req.Type {
	case types.TokenPC:
		if req.CharacterId == "" {
			return nil, types.ErrInvalid
		}
		for _, t := range tokens {
			if t.Type == types.TokenPC && t.CharacterId == req.CharacterId {
				return nil, types.ErrInvalid
			}
		}
	case types.TokenParty:
		if m.Grid != types.GridHex {
			return nil, types.ErrInvalid
		}
		for _, t := range tokens {
			if t.Type == types.TokenParty {
				return nil, types.ErrInvalid
			}
		}
	case types.TokenNPC, types.TokenMonster:
	default:
		return nil, types.ErrInvalid
	}
	token := &types.Token{
		Id:          uuid.NewString(),
		MapId:       m.Id,
		Type:        req.Type,
		Name:        req.Name,
		Position:    req.Position,
		Color:       req.Color,
		OwnerId:     actor.Id,
		CharacterId: req.CharacterId,
		NpcId:       req.NpcId,
		MonsterId:   req.MonsterId,
	}
	if err := s.persister.StoreToken(*token); err != nil {
		return nil, err
	}
	return token, nil
}

// Move repositions a token, last write wins per token id. The DM moves
// anything, a player only their own PC token.
func (s *Store) Move(session *types.Session, actor *types.User, m *types.GameMap, tokenId string, pos types.CellCoord) (*types.Token, error) {
	if !m.Contains(pos) {
		return nil, types.ErrInvalid
	}
	token := types.Token{Id: tokenId, MapId: m.Id}
	if err := s.persister.GetToken(&token); err != nil {
		return nil, err
	}
	if !s.mayControl(session, actor, &token) {
		return nil, types.ErrUnauthorized
	}
	token.Position = pos
	if err := s.persister.StoreToken(token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Remove deletes a token from the map.
func (s *Store) Remove(session *types.Session, actor *types.User, m *types.GameMap, tokenId string) (*types.Token, error) {
	token := types.Token{Id: tokenId, MapId: m.Id}
	if err := s.persister.GetToken(&token); err != nil {
		return nil, err
	}
	if !s.mayControl(session, actor, &token) {
		return nil, types.ErrUnauthorized
	}
	if err := s.persister.DeleteToken(&token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *Store) Tokens(mapId string) ([]*types.Token, error) {
	return s.persister.GetTokens(mapId)
}

func (s *Store) mayControl(session *types.Session, actor *types.User, token *types.Token) bool {
	if session.IsDM(actor.Id) {
		return true
	}
	return token.Type == types.TokenPC && token.OwnerId == actor.Id
}
