package booking

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InterventionType is the kind of work booked.
type InterventionType string

const (
	InterventionTattoo   InterventionType = "tattoo"
	InterventionPiercing InterventionType = "piercing"
)

// ParseInterventionType accepts only the closed set of intervention types.
func ParseInterventionType(s string) (InterventionType, bool) {
	switch t := InterventionType(strings.ToLower(strings.TrimSpace(s))); t {
	case InterventionTattoo, InterventionPiercing:
		return t, true
	}
	return "", false
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	ClientID         uuid.UUID        `db:"client_id" json:"client_id"`
	ProviderID       *uuid.UUID       `db:"provider_id" json:"provider_id,omitempty"`
	StartTime        time.Time        `db:"start_time" json:"start_time"`
	EndTime          time.Time        `db:"end_time" json:"end_time"`
	InterventionType InterventionType `db:"intervention_type" json:"intervention_type"`
	Price            *float64         `db:"price" json:"price,omitempty"`
	IsPublished      bool             `db:"is_published" json:"is_published"`
	IsPaid           bool             `db:"is_paid" json:"is_paid"`
	IsDeleted        bool             `db:"is_deleted" json:"is_deleted"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
	// Version increments on every write.
	Version int `db:"version" json:"version"`
}

// HasProvider reports whether a provider is assigned.
func (a *Appointment) HasProvider() bool { return a.ProviderID != nil && *a.ProviderID != uuid.Nil }

// IsParticipant reports whether id is the client or the provider.
func (a *Appointment) IsParticipant(id uuid.UUID) bool {
	return a.ClientID == id || (a.HasProvider() && *a.ProviderID == id)
}

// CreateRequest is the payload of a create. Pointer fields distinguish
// omitted values from zero values.
type CreateRequest struct {
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	InterventionType string     `json:"intervention_type"`
	Price            *float64   `json:"price"`
	IsPublished      *bool      `json:"is_published"`
	IsPaid           *bool      `json:"is_paid"`
	ClientID         *uuid.UUID `json:"client_id"`
	ProviderID       *uuid.UUID `json:"provider_id"`
}

// Patch is a partial update; nil fields leave the stored value unchanged.
type Patch struct {
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	InterventionType *string    `json:"intervention_type"`
	Price            *float64   `json:"price"`
	IsPublished      *bool      `json:"is_published"`
	IsPaid           *bool      `json:"is_paid"`
	IsDeleted        *bool      `json:"is_deleted"`
	ClientID         *uuid.UUID `json:"client_id"`
	ProviderID       *uuid.UUID `json:"provider_id"`
}

// AvailabilityRequest asks whether a provider is free over [start, end).
type AvailabilityRequest struct {
	ProviderID *uuid.UUID `json:"provider_id"`
	StartTime  *time.Time `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
}

// FilterCriteria narrows a listing. All fields are optional.
type FilterCriteria struct {
	ProviderID       *uuid.UUID `json:"provider_id"`
	From             *time.Time `json:"from"`
	To               *time.Time `json:"to"`
	InterventionType *string    `json:"intervention_type"`
}

// Query selects non-deleted appointments. Zero fields do not constrain.
type Query struct {
	ClientID         *uuid.UUID
	ProviderID       *uuid.UUID
	From             *time.Time
	To               *time.Time
	InterventionType *InterventionType
}

// Matches reports whether a satisfies q. A date window matches any
// appointment that intersects it, including ones that touch an edge.
func (q Query) Matches(a *Appointment) bool {
	if a.IsDeleted {
		return false
	}
	if q.ClientID != nil && a.ClientID != *q.ClientID {
		return false
	}
	if q.ProviderID != nil && (!a.HasProvider() || *a.ProviderID != *q.ProviderID) {
		return false
	}
	if q.From != nil && a.EndTime.Before(*q.From) {
		return false
	}
	if q.To != nil && a.StartTime.After(*q.To) {
		return false
	}
	if q.InterventionType != nil && a.InterventionType != *q.InterventionType {
		return false
	}
	return true
}

// Agenda is a caller's appointments split around now. All is only filled
// for superadmins.
type Agenda struct {
	Upcoming []*Appointment `json:"upcoming"`
	Past     []*Appointment `json:"past"`
	All      []*Appointment `json:"all,omitempty"`
}

func sortByStart(items []*Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartTime.Before(items[j].StartTime)
	})
}
