package types

import "time"

// GameMap is the opaque map record consumed by the real-time layer. The
// drawing/editor tools own its content, here it only provides the grid
// enumeration and the ownership links that decide the fog persistence scope.
type GameMap struct {
	Id          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name"`
	Grid        GridType  `json:"grid"`
	Cols        int       `json:"cols"`
	Rows        int       `json:"rows"`
	CampaignId  string    `json:"campaign_id"`
	AdventureId string    `json:"adventure_id"`
	BackdropUrl string    `json:"backdrop_url"`
	UpdatedAt   time.Time `json:"-"`
}

// Contains reports whether the cell lies within the map's grid bounds.
func (m *GameMap) Contains(c CellCoord) bool {
	if m.Grid == GridHex {
		return c.Q >= 0 && c.Q < m.Cols && c.R >= 0 && c.R < m.Rows
	}
	return c.Col >= 0 && c.Col < m.Cols && c.Row >= 0 && c.Row < m.Rows
}

// AllCells enumerates every cell of the map, used by fog reveal-all.
func (m *GameMap) AllCells() []CellCoord {
	cells := make([]CellCoord, 0, m.Cols*m.Rows)
	for a := 0; a < m.Cols; a++ {
		for b := 0; b < m.Rows; b++ {
			if m.Grid == GridHex {
				cells = append(cells, HexCell(a, b))
			} else {
				cells = append(cells, SquareCell(a, b))
			}
		}
	}
	return cells
}
