package types

import "time"

type TokenType string

const (
	TokenPC      TokenType = "PC"
	TokenNPC     TokenType = "NPC"
	TokenMonster TokenType = "MONSTER"
	TokenParty   TokenType = "PARTY"
)

// Token is a movable marker on the active map. Image data is resolved at
// render time by following the linked character/NPC/monster id, it is not
// frozen at placement time.
type Token struct {
	Id          string    `json:"id" gorm:"primaryKey"`
	MapId       string    `json:"map_id" gorm:"index"`
	Type        TokenType `json:"type"`
	Name        string    `json:"name"`
	Position    CellCoord `json:"position" gorm:"embedded;embeddedPrefix:pos_"`
	Color       string    `json:"color"`
	OwnerId     string    `json:"owner_id"` // placing user, move authorization for PC tokens
	CharacterId string    `json:"character_id,omitempty"`
	NpcId       string    `json:"npc_id,omitempty"`
	MonsterId   string    `json:"monster_id,omitempty"`
	ImageUrl    string    `json:"image_url,omitempty"`
	HotspotX    int       `json:"hotspot_x,omitempty"`
	HotspotY    int       `json:"hotspot_y,omitempty"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}
