package types

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionForming SessionStatus = "FORMING"
	SessionActive  SessionStatus = "ACTIVE"
	SessionPaused  SessionStatus = "PAUSED"
	SessionEnded   SessionStatus = "ENDED"
)

// Session is one live, time-bounded instance of running an adventure.
// Only Status and the active display fields are mutable through the
// real-time layer, everything else is CRUD-managed elsewhere.
type Session struct {
	Id               string                      `json:"id" gorm:"primaryKey"`
	Status           SessionStatus               `json:"status"`
	DmId             string                      `json:"dm_id"`
	ActiveMapId      string                      `json:"active_map_id"`
	ActiveBackdropId string                      `json:"active_backdrop_id"`
	Participants     datatypes.JSONSlice[string] `json:"participants"`
	Invites          datatypes.JSONSlice[string] `json:"invites"`
	CreatedAt        time.Time                   `json:"-"`
	UpdatedAt        time.Time                   `json:"-"`
}

func (s *Session) Ended() bool { return s.Status == SessionEnded }

func (s *Session) IsDM(userId string) bool { return userId != "" && userId == s.DmId }

func (s *Session) IsParticipant(userId string) bool {
	if s.IsDM(userId) {
		return true
	}
	for _, p := range s.Participants {
		if p == userId {
			return true
		}
	}
	return false
}

func (s *Session) IsInvited(userId string) bool {
	for _, inv := range s.Invites {
		if inv == userId {
			return true
		}
	}
	return false
}

// CanTransition reports whether the status change is allowed by the session
// lifecycle: FORMING -> ACTIVE -> (PAUSED <-> ACTIVE) -> ENDED, with ENDED
// terminal.
func (s *Session) CanTransition(to SessionStatus) bool {
	switch s.Status {
	case SessionForming:
		return to == SessionActive || to == SessionEnded
	case SessionActive:
		return to == SessionPaused || to == SessionEnded
	case SessionPaused:
		return to == SessionActive || to == SessionEnded
	}
	return false
}
