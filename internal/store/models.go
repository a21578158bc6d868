package store

import "time"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is a single history entry. Completed exchanges are always stored as
// a (user, model) pair; the transcript never ends mid-exchange.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserSession is the per-user record: remaining credits plus the full
// conversation transcript in insertion order.
type UserSession struct {
	UserID    int64     `json:"user_id"`
	Credits   int       `json:"credits"`
	History   []Turn    `json:"history"`
	CreatedAt time.Time `json:"created_at"`
}
