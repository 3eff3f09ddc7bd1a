package types

import (
	"time"

	"gorm.io/datatypes"
)

type ScopeKind string

const (
	ScopeCampaign  ScopeKind = "campaign"
	ScopeAdventure ScopeKind = "adventure"
	ScopeSession   ScopeKind = "session"
)

// ScopeKey identifies the persistence level at which revealed cells are
// stored for a map: campaign world maps persist under their campaign,
// adventure maps under their adventure, everything else is session-local.
type ScopeKey struct {
	Kind    ScopeKind `json:"kind"`
	OwnerId string    `json:"owner_id"`
}

// FogState is the persisted set of revealed cells for one map under one
// scope. The set only grows via explicit reveals and is only emptied by an
// explicit hide-all, there is no implicit re-hiding.
type FogState struct {
	ScopeKind ScopeKind                      `json:"scope_kind" gorm:"primaryKey"`
	OwnerId   string                         `json:"owner_id" gorm:"primaryKey"`
	MapId     string                         `json:"map_id" gorm:"primaryKey"`
	Revealed  datatypes.JSONSlice[CellCoord] `json:"revealed"`
	UpdatedAt time.Time                      `json:"-"`
}
