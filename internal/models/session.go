package models

import "time"

// Session binds a connection to a durable participant identity
type Session struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Color      string    `json:"color"`
	ConnID     string    `json:"-"`
	CreatedAt  time.Time `json:"joinedAt"`
	LastSeenAt time.Time `json:"-"`
}

// Player returns the membership record for this identity
func (s *Session) Player() Player {
	return Player{UserID: s.UserID, Username: s.Username, Color: s.Color}
}
