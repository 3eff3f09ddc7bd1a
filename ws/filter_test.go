package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-tabletop/types"
)

func testClient(hub *Hub, userId, nick string) *Client {
	return &Client{hub: hub, user: &types.User{Id: userId, Nick: nick}}
}

func TestUserTargetFilter(t *testing.T) {
	hub := &Hub{Session: &types.Session{Id: "s1", DmId: "dm"}}
	alice := testClient(hub, "alice", "Alice")
	bob := testClient(hub, "bob", "Bob")

	prog := compileTargetFilter(userTargetFilter("bob"))
	if prog == nil {
		t.Fatal("filter did not compile")
	}
	assert.False(t, alice.RunTargetFilter(prog, types.MessageTypeRTCOffer, alice.user))
	assert.True(t, bob.RunTargetFilter(prog, types.MessageTypeRTCOffer, alice.user))
}

func TestChannelTargetFilter(t *testing.T) {
	hub := &Hub{Session: &types.Session{Id: "s1", DmId: "dm"}}
	alice := testClient(hub, "alice", "Alice")
	carol := testClient(hub, "carol", "Carol")

	// the main channel is unfiltered
	main := &types.ChatChannel{IsMain: true}
	assert.Equal(t, "", ChannelTargetFilter(main))

	whisper := &types.ChatChannel{Participants: []string{"alice", "bob"}}
	prog := compileTargetFilter(ChannelTargetFilter(whisper))
	if prog == nil {
		t.Fatal("filter did not compile")
	}
	assert.True(t, alice.RunTargetFilter(prog, types.MessageTypeChatMessage, alice.user))
	assert.False(t, carol.RunTargetFilter(prog, types.MessageTypeChatMessage, alice.user))
}

func TestCompileTargetFilter(t *testing.T) {
	// no filter means unfiltered delivery
	assert.Nil(t, compileTargetFilter(""))
	// a broken filter compiles to nil, the hub then skips the message instead
	// of widening delivery
	assert.Nil(t, compileTargetFilter(`Target.DoesNotExist == 1`))
	assert.NotNil(t, compileTargetFilter(`Target.Id == "x"`))
}
