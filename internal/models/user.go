package models

import (
	"time"
)

// User is a chat user, keyed by the chat identity
type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  *string   `json:"username,omitempty" db:"username"`
	FullName  *string   `json:"full_name,omitempty" db:"full_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Handle returns "@username (id)" or just the id when no username is known
func (u *User) Handle() string {
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username + " (" + formatID(u.ID) + ")"
	}
	return formatID(u.ID)
}
