package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	s := &Session{Status: SessionForming}
	assert.True(t, s.CanTransition(SessionActive))
	assert.True(t, s.CanTransition(SessionEnded))
	assert.False(t, s.CanTransition(SessionPaused))

	s.Status = SessionActive
	assert.True(t, s.CanTransition(SessionPaused))
	assert.True(t, s.CanTransition(SessionEnded))
	assert.False(t, s.CanTransition(SessionForming))

	s.Status = SessionPaused
	assert.True(t, s.CanTransition(SessionActive))
	assert.True(t, s.CanTransition(SessionEnded))

	// ENDED is terminal
	s.Status = SessionEnded
	assert.False(t, s.CanTransition(SessionActive))
	assert.False(t, s.CanTransition(SessionForming))
	assert.False(t, s.CanTransition(SessionPaused))
}

func TestSessionMembership(t *testing.T) {
	s := &Session{Id: "s1", DmId: "dm", Participants: []string{"alice"}, Invites: []string{"bob"}}
	assert.True(t, s.IsDM("dm"))
	assert.False(t, s.IsDM(""))
	assert.True(t, s.IsParticipant("dm"))
	assert.True(t, s.IsParticipant("alice"))
	assert.False(t, s.IsParticipant("bob"))
	assert.True(t, s.IsInvited("bob"))
	assert.False(t, s.IsInvited("alice"))
}

func TestChannelDisplayName(t *testing.T) {
	nicks := map[string]string{"alice": "Alice", "bob": "Bob", "carol": "Carol"}
	nickOf := func(id string) string { return nicks[id] }

	main := &ChatChannel{IsMain: true, Name: "ignored"}
	assert.Equal(t, "main", main.DisplayName("alice", nickOf))

	// a whisper always shows the counterpart, never its stored name
	whisper := &ChatChannel{Participants: []string{"alice", "bob"}}
	assert.Equal(t, "Bob", whisper.DisplayName("alice", nickOf))
	assert.Equal(t, "Alice", whisper.DisplayName("bob", nickOf))

	group := &ChatChannel{Participants: []string{"alice", "bob", "carol"}, Name: "plotting"}
	assert.Equal(t, "plotting", group.DisplayName("alice", nickOf))
}

func TestChatMessageCreateId(t *testing.T) {
	m1 := ChatMessage{ChannelId: "c1", SenderId: "alice", Content: "hi"}
	m2 := ChatMessage{ChannelId: "c1", SenderId: "alice", Content: "hi"}
	if err := m1.CreateId(); err != nil {
		t.Fatal(err)
	}
	if err := m2.CreateId(); err != nil {
		t.Fatal(err)
	}
	assert.NotEmpty(t, m1.Id)
	assert.Equal(t, m1.Id, m2.Id)

	m3 := ChatMessage{ChannelId: "c1", SenderId: "alice", Content: "bye"}
	if err := m3.CreateId(); err != nil {
		t.Fatal(err)
	}
	assert.NotEqual(t, m1.Id, m3.Id)
}
