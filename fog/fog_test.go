package fog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/persistence"
	"github.com/tcriess/lightspeed-tabletop/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}}
	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { persister.Close() })
	return NewStore(persister)
}

func TestRevealDelta(t *testing.T) {
	store := newTestStore(t)
	m := &types.GameMap{Id: "m1", Grid: types.GridSquare, Cols: 10, Rows: 10}

	delta, err := store.Reveal("s1", m, []types.CellCoord{types.SquareCell(1, 1), types.SquareCell(2, 2)})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, len(delta))

	// re-revealing is idempotent, the delta only carries new cells
	delta, err = store.Reveal("s1", m, []types.CellCoord{types.SquareCell(1, 1), types.SquareCell(3, 3)})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(delta))
	assert.True(t, delta[0].Equal(types.SquareCell(3, 3), types.GridSquare))

	// a fully redundant reveal yields an empty delta
	delta, err = store.Reveal("s1", m, []types.CellCoord{types.SquareCell(1, 1)})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, len(delta))

	fs, err := store.State("s1", m)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 3, len(fs.Revealed))
}

func TestRevealOutOfBounds(t *testing.T) {
	store := newTestStore(t)
	m := &types.GameMap{Id: "m1", Grid: types.GridSquare, Cols: 2, Rows: 2}

	delta, err := store.Reveal("s1", m, []types.CellCoord{types.SquareCell(5, 5), types.SquareCell(1, 1)})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(delta))
	assert.True(t, delta[0].Equal(types.SquareCell(1, 1), types.GridSquare))
}

func TestRevealAllAndHideAll(t *testing.T) {
	store := newTestStore(t)
	m := &types.GameMap{Id: "m1", Grid: types.GridHex, Cols: 3, Rows: 3}

	_, err := store.Reveal("s1", m, []types.CellCoord{types.HexCell(0, 0)})
	if err != nil {
		t.Fatal(err)
	}
	delta, err := store.RevealAll("s1", m)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 8, len(delta))

	if err := store.HideAll("s1", m); err != nil {
		t.Fatal(err)
	}
	fs, err := store.State("s1", m)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, len(fs.Revealed))
}

func TestScopeResolution(t *testing.T) {
	store := newTestStore(t)

	campaignMap := &types.GameMap{Id: "m1", Grid: types.GridSquare, Cols: 5, Rows: 5, CampaignId: "c1", AdventureId: "a1"}
	adventureMap := &types.GameMap{Id: "m2", Grid: types.GridSquare, Cols: 5, Rows: 5, AdventureId: "a1"}
	sessionMap := &types.GameMap{Id: "m3", Grid: types.GridSquare, Cols: 5, Rows: 5}

	assert.Equal(t, types.ScopeKey{Kind: types.ScopeCampaign, OwnerId: "c1"}, store.ResolveScope("s1", campaignMap))
	assert.Equal(t, types.ScopeKey{Kind: types.ScopeAdventure, OwnerId: "a1"}, store.ResolveScope("s1", adventureMap))
	assert.Equal(t, types.ScopeKey{Kind: types.ScopeSession, OwnerId: "s1"}, store.ResolveScope("s1", sessionMap))
}

func TestScopePersistence(t *testing.T) {
	store := newTestStore(t)

	// campaign-scoped fog survives across sessions
	campaignMap := &types.GameMap{Id: "m1", Grid: types.GridSquare, Cols: 5, Rows: 5, CampaignId: "c1"}
	if _, err := store.Reveal("s1", campaignMap, []types.CellCoord{types.SquareCell(1, 1)}); err != nil {
		t.Fatal(err)
	}
	fs, err := store.State("s2", campaignMap)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(fs.Revealed))

	// session-scoped fog is isolated per session
	sessionMap := &types.GameMap{Id: "m3", Grid: types.GridSquare, Cols: 5, Rows: 5}
	if _, err := store.Reveal("s1", sessionMap, []types.CellCoord{types.SquareCell(1, 1)}); err != nil {
		t.Fatal(err)
	}
	fs, err = store.State("s2", sessionMap)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, len(fs.Revealed))
}
