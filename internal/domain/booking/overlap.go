package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Ranges that only
// touch at an endpoint do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// OverlapChecker finds conflicting bookings for a provider.
type OverlapChecker struct {
	repo AppointmentRepository
}

func NewOverlapChecker(repo AppointmentRepository) *OverlapChecker {
	return &OverlapChecker{repo: repo}
}

// HasConflict reports whether a non-deleted appointment of providerID other
// than excludeID intersects [start, end). A nil provider never conflicts.
func (c *OverlapChecker) HasConflict(ctx context.Context, providerID *uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	if providerID == nil || *providerID == uuid.Nil {
		return false, nil
	}
	candidates, err := c.repo.ActiveByProviderBetween(ctx, *providerID, start, end)
	if err != nil {
		return false, err
	}
	for _, a := range candidates {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			return true, nil
		}
	}
	return false, nil
}
