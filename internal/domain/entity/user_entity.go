package entity

import (
	"time"
)

// User is an account that owns zero or more widgets.
// Password holds a bcrypt hash, never the plaintext.
type User struct {
	ID        int64
	Username  string
	Name      string
	Email     string
	Password  string
	CreatedAt time.Time
}
