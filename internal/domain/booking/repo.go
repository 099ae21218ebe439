package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	// GetByID returns the appointment even when soft-deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update writes a only if the stored version still equals a.Version and
	// returns a ConflictError otherwise. On success a.Version is advanced.
	Update(ctx context.Context, a *Appointment) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// Search returns non-deleted appointments matching q, ordered by start
	// time ascending.
	Search(ctx context.Context, q Query) ([]*Appointment, error)
	// ActiveByProviderBetween returns the provider's non-deleted appointments
	// that intersect [from, to).
	ActiveByProviderBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*Appointment, error)
}
