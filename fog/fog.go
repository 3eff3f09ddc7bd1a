// Package fog implements the layered fog-of-war store. Revealed-cell sets
// are persisted at campaign, adventure or session scope depending on which
// entity owns the map.
package fog

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/tcriess/lightspeed-tabletop/persistence"
	"github.com/tcriess/lightspeed-tabletop/types"
)

const scopeCacheSize = 256

type Store struct {
	persister persistence.Persister
	scopes    *lru.Cache // map id + session id -> types.ScopeKey
}

func NewStore(persister persistence.Persister) *Store {
	cache, _ := lru.New(scopeCacheSize)
	return &Store{persister: persister, scopes: cache}
}

// ResolveScope picks the storage scope for a map once, precedence
// campaign > adventure > session. World and adventure maps keep their fog
// across sessions, everything else is thrown away with the session.
func (s *Store) ResolveScope(sessionId string, m *types.GameMap) types.ScopeKey {
	cacheKey := m.Id + "\x00" + sessionId
	if v, ok := s.scopes.Get(cacheKey); ok {
		return v.(types.ScopeKey)
	}
	var key types.ScopeKey
	switch {
	case m.CampaignId != "":
		key = types.ScopeKey{Kind: types.ScopeCampaign, OwnerId: m.CampaignId}
	case m.AdventureId != "":
		key = types.ScopeKey{Kind: types.ScopeAdventure, OwnerId: m.AdventureId}
	default:
		key = types.ScopeKey{Kind: types.ScopeSession, OwnerId: sessionId}
	}
	s.scopes.Add(cacheKey, key)
	return key
}

// State loads the fog state of the map under its resolved scope. A missing
// row means nothing has been revealed yet.
func (s *Store) State(sessionId string, m *types.GameMap) (*types.FogState, error) {
	scope := s.ResolveScope(sessionId, m)
	fs := types.FogState{ScopeKind: scope.Kind, OwnerId: scope.OwnerId, MapId: m.Id}
	err := s.persister.GetFogState(&fs)
	if err == types.ErrNotFound {
		return &fs, nil
	}
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// Reveal adds the given cells to the revealed set and returns only the newly
// revealed cells. An empty result means nothing changed and no delta should
// be broadcast.
func (s *Store) Reveal(sessionId string, m *types.GameMap, cells []types.CellCoord) ([]types.CellCoord, error) {
	fs, err := s.State(sessionId, m)
	if err != nil {
		return nil, err
	}
	revealed := types.NewCellSet(m.Grid, fs.Revealed...)
	delta := make([]types.CellCoord, 0, len(cells))
	for _, c := range cells {
		if !m.Contains(c) {
			continue
		}
		if revealed.Add(c) {
			delta = append(delta, c)
			fs.Revealed = append(fs.Revealed, c)
		}
	}
	if len(delta) == 0 {
		return delta, nil
	}
	if err := s.persister.StoreFogState(*fs); err != nil {
		return nil, err
	}
	return delta, nil
}

// RevealAll reveals the full cell enumeration of the map, returning only the
// previously unrevealed cells.
func (s *Store) RevealAll(sessionId string, m *types.GameMap) ([]types.CellCoord, error) {
	return s.Reveal(sessionId, m, m.AllCells())
}

// HideAll unconditionally resets the revealed set. This is the only
// cell-hiding operation, there is no re-hiding of subsets.
func (s *Store) HideAll(sessionId string, m *types.GameMap) error {
	scope := s.ResolveScope(sessionId, m)
	fs := types.FogState{ScopeKind: scope.Kind, OwnerId: scope.OwnerId, MapId: m.Id}
	return s.persister.StoreFogState(fs)
}
