package repository

import (
	"context"
	"errors"

	"github.com/sitereply/sitereply/internal/domain/entity"
)

// ErrDuplicate is returned when an insert collides with a uniqueness
// constraint (username, name, email, widget public key).
var ErrDuplicate = errors.New("duplicate")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// UserRepository defines the interface for user-related database operations.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}
