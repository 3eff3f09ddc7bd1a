package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-tabletop/types"
)

func TestPeersToOffer(t *testing.T) {
	connected := []types.ConnectedUser{
		{UserId: "alice"},
		{UserId: "bob"},
		{UserId: "carol"},
	}

	// the joiner offers to everyone already connected, never to itself
	peers := PeersToOffer(connected, "carol")
	assert.ElementsMatch(t, []string{"alice", "bob"}, peers)

	peers = PeersToOffer([]types.ConnectedUser{{UserId: "alice"}}, "alice")
	assert.Equal(t, 0, len(peers))
}

func TestValidateSignal(t *testing.T) {
	assert.NoError(t, ValidateSignal("alice", &types.RTCSignalPayload{TargetUserId: "bob"}))
	assert.Equal(t, types.ErrInvalid, ValidateSignal("alice", &types.RTCSignalPayload{}))
	assert.Equal(t, types.ErrInvalid, ValidateSignal("alice", &types.RTCSignalPayload{TargetUserId: "alice"}))
}
