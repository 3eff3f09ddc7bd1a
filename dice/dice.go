// Package dice parses and evaluates /roll commands in chat messages.
package dice

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/tcriess/lightspeed-tabletop/types"
)

var rollRe = regexp.MustCompile(`^/roll\s+(\d+)d(\d+)\s*(?:([+-])\s*(\d+))?\s*$`)

const (
	maxDice  = 100
	maxSides = 1000
)

// Roll is one parsed and possibly evaluated dice expression of the form
// NdS, NdS+M or NdS-M.
type Roll struct {
	Expression string
	Count      int
	Sides      int
	Modifier   int
	Results    []int
	Total      int
	Critical   string // "nat1" / "nat20" on a single d20, otherwise empty
}

// Parse recognizes a /roll command. The bool result reports whether content
// is a dice roll at all, a false means the content should be treated as a
// plain text message.
func Parse(content string) (*Roll, bool) {
	m := rollRe.FindStringSubmatch(strings.TrimSpace(content))
	if m == nil {
		return nil, false
	}
	count, err := strconv.Atoi(m[1])
	if err != nil || count < 1 || count > maxDice {
		return nil, false
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil || sides < 2 || sides > maxSides {
		return nil, false
	}
	modifier := 0
	if m[4] != "" {
		modifier, err = strconv.Atoi(m[4])
		if err != nil {
			return nil, false
		}
		if m[3] == "-" {
			modifier = -modifier
		}
	}
	expr := strconv.Itoa(count) + "d" + strconv.Itoa(sides)
	if modifier > 0 {
		expr += "+" + strconv.Itoa(modifier)
	} else if modifier < 0 {
		expr += strconv.Itoa(modifier)
	}
	return &Roll{Expression: expr, Count: count, Sides: sides, Modifier: modifier}, true
}

// Throw fills Results, Total and Critical using the given source of
// randomness.
func (r *Roll) Throw(rng *rand.Rand) {
	r.Results = make([]int, r.Count)
	r.Total = r.Modifier
	for i := range r.Results {
		r.Results[i] = rng.Intn(r.Sides) + 1
		r.Total += r.Results[i]
	}
	r.Critical = types.CriticalNone
	if r.Count == 1 && r.Sides == 20 {
		switch r.Results[0] {
		case 1:
			r.Critical = types.CriticalNatOne
		case 20:
			r.Critical = types.CriticalNatMax
		}
	}
}
