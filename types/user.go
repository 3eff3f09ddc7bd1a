package types

import "time"

type User struct {
	Id         string        `json:"id" gorm:"primaryKey"` // e-mail, unique!
	Nick       string        `json:"nick"`
	AvatarUrl  string        `json:"avatar_url"`
	Tags       JSONStringMap `json:"tags"`
	LastOnline time.Time     `json:"last_online"` // last seen online
}

// ConnectedUser is the ephemeral presence entry for one live connection.
// It is never persisted, a process restart simply rebuilds presence from
// the reconnecting clients.
type ConnectedUser struct {
	UserId      string    `json:"user_id"`
	Nick        string    `json:"nick"`
	AvatarUrl   string    `json:"avatar_url"`
	ConnectedAt time.Time `json:"connected_at"`
}
