package types

import "strconv"

type GridType string

const (
	GridSquare GridType = "square"
	GridHex    GridType = "hex"
)

// CellCoord addresses one grid cell. Square maps use Col/Row, hex maps use
// the axial Q/R pair. The two representations are never mixed within one
// map, so equality and set membership only ever look at the fields belonging
// to the map's grid type.
type CellCoord struct {
	Col int `json:"col"`
	Row int `json:"row"`
	Q   int `json:"q"`
	R   int `json:"r"`
}

func SquareCell(col, row int) CellCoord { return CellCoord{Col: col, Row: row} }

func HexCell(q, r int) CellCoord { return CellCoord{Q: q, R: r} }

// Equal compares only the fields valid for the given grid type, never
// cross-comparing square and hex fields.
func (c CellCoord) Equal(o CellCoord, grid GridType) bool {
	if grid == GridHex {
		return c.Q == o.Q && c.R == o.R
	}
	return c.Col == o.Col && c.Row == o.Row
}

// Key returns a stable set key for the cell under the given grid type.
func (c CellCoord) Key(grid GridType) string {
	if grid == GridHex {
		return "h" + strconv.Itoa(c.Q) + ":" + strconv.Itoa(c.R)
	}
	return "s" + strconv.Itoa(c.Col) + ":" + strconv.Itoa(c.Row)
}

// CellSet is a grid-aware set of cells.
type CellSet struct {
	grid  GridType
	cells map[string]CellCoord
}

func NewCellSet(grid GridType, cells ...CellCoord) *CellSet {
	s := &CellSet{grid: grid, cells: make(map[string]CellCoord, len(cells))}
	for _, c := range cells {
		s.cells[c.Key(grid)] = c
	}
	return s
}

func (s *CellSet) Contains(c CellCoord) bool {
	_, ok := s.cells[c.Key(s.grid)]
	return ok
}

// Add inserts the cell and reports whether it was newly added.
func (s *CellSet) Add(c CellCoord) bool {
	k := c.Key(s.grid)
	if _, ok := s.cells[k]; ok {
		return false
	}
	s.cells[k] = c
	return true
}

func (s *CellSet) Len() int { return len(s.cells) }

func (s *CellSet) Cells() []CellCoord {
	out := make([]CellCoord, 0, len(s.cells))
	for _, c := range s.cells {
		out = append(out, c)
	}
	return out
}
