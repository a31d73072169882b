package entity

import (
	"time"
)

// Widget is one embeddable chat agent representing one business. It is
// addressed externally only by PublicKey; the numeric ID never leaves the
// service.
type Widget struct {
	ID             int64
	UserID         int64
	Name           string // business name, used as the persona name in prompts
	Email          string // contact email, used in the fallback answer
	Summary        string // sole knowledge source for answers
	PublicKey      string
	Plan           Plan
	SubscriptionID string // empty until a paid plan is active
	LogoURL        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
