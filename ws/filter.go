package ws

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/tcriess/lightspeed-tabletop/filter"
	"github.com/tcriess/lightspeed-tabletop/globals"
	"github.com/tcriess/lightspeed-tabletop/types"
)

// RunTargetFilter decides whether an outbound message with the given
// compiled target filter is delivered to this client. A nil program means
// the message is unfiltered (broadcast).
func (c *Client) RunTargetFilter(prog *vm.Program, name string, source *types.User) bool {
	if prog == nil {
		return true
	}
	env := filter.Env{
		Session: filter.Session{
			Id:   c.hub.Session.Id,
			DmId: c.hub.Session.DmId,
		},
		Target: filter.Target{
			User: filter.User{
				Id:   c.user.Id,
				Nick: c.user.Nick,
			},
		},
		Name: name,
	}
	if source != nil {
		env.Source = filter.Source{
			User: filter.User{
				Id:   source.Id,
				Nick: source.Nick,
			},
		}
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Error("could not run target filter", "error", err)
		return false
	}
	bRes, ok := res.(bool)
	return ok && bRes
}

func compileTargetFilter(targetFilter string) *vm.Program {
	if targetFilter == "" {
		return nil
	}
	prog, err := expr.Compile(targetFilter, expr.Env(filter.Env{}))
	if err != nil {
		globals.AppLogger.Error("could not compile target filter", "filter", targetFilter, "error", err)
		return nil
	}
	return prog
}
