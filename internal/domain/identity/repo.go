package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/inkbook/inkbook/internal/platform/auth"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	// GetByID and GetByEmail return soft-deleted users too.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListByRole(ctx context.Context, role auth.Role, includeDeleted bool) ([]*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	// ExistsWithRole reports whether an active user has the role; an empty
	// role matches any.
	ExistsWithRole(ctx context.Context, id uuid.UUID, role auth.Role) (bool, error)
}
