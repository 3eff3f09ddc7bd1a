package dice

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-tabletop/types"
)

func TestParse(t *testing.T) {
	roll, ok := Parse("/roll 2d6")
	if !ok {
		t.Fatal("expected a roll")
	}
	assert.Equal(t, 2, roll.Count)
	assert.Equal(t, 6, roll.Sides)
	assert.Equal(t, 0, roll.Modifier)
	assert.Equal(t, "2d6", roll.Expression)

	roll, ok = Parse("  /roll 1d20+5  ")
	if !ok {
		t.Fatal("expected a roll")
	}
	assert.Equal(t, 1, roll.Count)
	assert.Equal(t, 20, roll.Sides)
	assert.Equal(t, 5, roll.Modifier)
	assert.Equal(t, "1d20+5", roll.Expression)

	roll, ok = Parse("/roll 3d8 - 2")
	if !ok {
		t.Fatal("expected a roll")
	}
	assert.Equal(t, -2, roll.Modifier)
	assert.Equal(t, "3d8-2", roll.Expression)

	for _, content := range []string{
		"hello",
		"/roll",
		"/roll d6",
		"/roll 2d6 extra",
		"/roll 0d6",
		"/roll 101d6",
		"/roll 2d1",
		"/roll 2d1001",
		"roll 2d6",
	} {
		if _, ok := Parse(content); ok {
			t.Fatalf("%q should not parse as a roll", content)
		}
	}
}

func TestThrow(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	roll, _ := Parse("/roll 4d6+3")
	roll.Throw(rng)
	assert.Equal(t, 4, len(roll.Results))
	total := roll.Modifier
	for _, r := range roll.Results {
		if r < 1 || r > 6 {
			t.Fatalf("die result %d out of range", r)
		}
		total += r
	}
	assert.Equal(t, total, roll.Total)
	assert.Equal(t, types.CriticalNone, roll.Critical)
}

func TestThrowCritical(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sawNat1, sawNat20 := false, false
	for i := 0; i < 1000; i++ {
		roll, _ := Parse("/roll 1d20")
		roll.Throw(rng)
		switch roll.Results[0] {
		case 1:
			assert.Equal(t, types.CriticalNatOne, roll.Critical)
			sawNat1 = true
		case 20:
			assert.Equal(t, types.CriticalNatMax, roll.Critical)
			sawNat20 = true
		default:
			assert.Equal(t, types.CriticalNone, roll.Critical)
		}
	}
	assert.True(t, sawNat1)
	assert.True(t, sawNat20)

	// criticals only apply to a single d20
	rng = rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		roll, _ := Parse("/roll 2d20")
		roll.Throw(rng)
		assert.Equal(t, types.CriticalNone, roll.Critical)
	}
}
