package filter

import (
	"testing"

	"github.com/antonmedv/expr"
	"github.com/stretchr/testify/assert"
)

func TestTargetFilter(t *testing.T) {
	env := Env{
		Session: Session{Id: "s1", DmId: "dm"},
		Source:  Source{User: User{Id: "alice", Nick: "Alice"}},
		Target:  Target{User: User{Id: "bob", Nick: "Bob"}},
		Name:    "rtc:offer",
	}

	res, err := expr.Eval(`Target.Id == "bob"`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, true, res.(bool))

	res, err = expr.Eval(`Target.Id == "carol"`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, false, res.(bool))

	res, err = expr.Eval(`Target.Id in ["alice", "bob"]`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, true, res.(bool))

	res, err = expr.Eval(`Target.Id == Session.DmId`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, false, res.(bool))
}

func TestCompileAgainstEnv(t *testing.T) {
	// filters attached to relayed messages are compiled against the typed env
	prog, err := expr.Compile(`Target.Id == "bob" && Name == "rtc:offer"`, expr.Env(Env{}))
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	res, err := expr.Run(prog, Env{
		Target: Target{User: User{Id: "bob"}},
		Name:   "rtc:offer",
	})
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, true, res.(bool))

	_, err = expr.Compile(`Target.Unknown == 1`, expr.Env(Env{}))
	assert.Error(t, err)
}
