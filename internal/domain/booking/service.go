package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inkbook/inkbook/internal/platform/apperr"
	"github.com/inkbook/inkbook/internal/platform/auth"
	"github.com/inkbook/inkbook/internal/platform/events"
	"github.com/inkbook/inkbook/internal/platform/lock"
)

// Event types published after a successful write.
const (
	EventCreated = "appointment.created"
	EventUpdated = "appointment.updated"
	EventDeleted = "appointment.deleted"
)

const publishTimeout = 5 * time.Second

// Directory answers participant lookups. An empty role matches any active
// user.
type Directory interface {
	ExistsWithRole(ctx context.Context, id uuid.UUID, role auth.Role) (bool, error)
}

// Service is the scheduling engine. Every write that can create an overlap
// runs its conflict check and the write inside one per-provider critical
// section.
type Service struct {
	repo    AppointmentRepository
	overlap *OverlapChecker
	dir     Directory
	locker  lock.Serializer
	events  events.Publisher
	logger  zerolog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo AppointmentRepository, dir Directory, locker lock.Serializer, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		overlap: NewOverlapChecker(repo),
		dir:     dir,
		locker:  locker,
		events:  events.Noop{},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func callerOf(id auth.Identity) (uuid.UUID, error) {
	caller, err := uuid.Parse(id.SubjectID)
	if err != nil {
		return uuid.Nil, apperr.Unauthorized("invalid subject")
	}
	return caller, nil
}

func providerKey(id uuid.UUID) string { return "provider:" + id.String() }

// withProvider runs fn inside the provider's critical section, or directly
// when no provider is assigned.
func (s *Service) withProvider(ctx context.Context, providerID *uuid.UUID, fn func(ctx context.Context) error) error {
	if providerID == nil {
		return fn(ctx)
	}
	return s.locker.Serialize(ctx, providerKey(*providerID), fn)
}

func (s *Service) checkRef(ctx context.Context, field string, id uuid.UUID, role auth.Role) error {
	ok, err := s.dir.ExistsWithRole(ctx, id, role)
	if err != nil {
		return err
	}
	if !ok {
		if role != "" {
			return apperr.Newf(apperr.KindReference, "%s does not reference an existing %s", field, role)
		}
		return apperr.Newf(apperr.KindReference, "%s does not reference an existing user", field)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, events.NewEvent(eventType, a.ID.String(), a)); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", a.ID.String()).
			Msg("publish appointment event")
	}
}

func (s *Service) rejectConflict(providerID uuid.UUID, start, end time.Time) error {
	s.logger.Debug().
		Str("provider_id", providerID.String()).
		Time("start_time", start).
		Time("end_time", end).
		Msg("booking rejected: overlaps existing appointment")
	return apperr.Conflict("the provider already has an appointment in this time range")
}

func validateTimes(now, start, end time.Time) error {
	if !start.After(now) {
		return apperr.InvalidDate("start_time must be in the future")
	}
	if end.Before(start) {
		return apperr.InvalidRange("end_time must not be before start_time")
	}
	return nil
}

func validatePrice(p *float64) error {
	if p != nil && *p < 0 {
		return apperr.Validation("price must not be negative")
	}
	return nil
}

// Create books a new appointment for the caller.
func (s *Service) Create(ctx context.Context, id auth.Identity, req CreateRequest) (*Appointment, error) {
	var missing []string
	if req.StartTime == nil {
		missing = append(missing, "start_time")
	}
	if req.EndTime == nil {
		missing = append(missing, "end_time")
	}
	if req.InterventionType == "" {
		missing = append(missing, "intervention_type")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}

	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	if err := validateTimes(s.now(), start, end); err != nil {
		return nil, err
	}
	kind, ok := ParseInterventionType(req.InterventionType)
	if !ok {
		return nil, apperr.Newf(apperr.KindValidation, "intervention_type must be %q or %q", InterventionTattoo, InterventionPiercing)
	}
	if err := validatePrice(req.Price); err != nil {
		return nil, err
	}

	caller, err := callerOf(id)
	if err != nil {
		return nil, err
	}
	rule, ok := createRules[id.Role]
	if !ok {
		return nil, apperr.Forbidden("role may not book appointments")
	}
	clientID, providerID, err := s.resolveParticipants(ctx, rule, caller, req)
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		ID:               uuid.New(),
		ClientID:         clientID,
		ProviderID:       providerID,
		StartTime:        start,
		EndTime:          end,
		InterventionType: kind,
		Price:            req.Price,
		IsPublished:      true,
	}
	if req.IsPublished != nil {
		a.IsPublished = *req.IsPublished
	}
	if req.IsPaid != nil {
		a.IsPaid = *req.IsPaid
	}

	err = s.withProvider(ctx, providerID, func(ctx context.Context) error {
		conflict, err := s.overlap.HasConflict(ctx, providerID, start, end, nil)
		if err != nil {
			return err
		}
		if conflict {
			return s.rejectConflict(*providerID, start, end)
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventCreated, a)
	return a, nil
}

func (s *Service) resolveParticipants(ctx context.Context, rule participantRule, caller uuid.UUID, req CreateRequest) (uuid.UUID, *uuid.UUID, error) {
	var clientID uuid.UUID
	switch rule.client {
	case fromCaller:
		clientID = caller
	default:
		if req.ClientID == nil || *req.ClientID == uuid.Nil {
			return uuid.Nil, nil, apperr.MissingFields("client_id")
		}
		if err := s.checkRef(ctx, "client_id", *req.ClientID, rule.clientRole); err != nil {
			return uuid.Nil, nil, err
		}
		clientID = *req.ClientID
	}

	var providerID *uuid.UUID
	switch rule.provider {
	case fromCaller:
		p := caller
		providerID = &p
	default:
		if req.ProviderID == nil || *req.ProviderID == uuid.Nil {
			if rule.provider == fromBody {
				return uuid.Nil, nil, apperr.MissingFields("provider_id")
			}
			break
		}
		if err := s.checkRef(ctx, "provider_id", *req.ProviderID, rule.providerRole); err != nil {
			return uuid.Nil, nil, err
		}
		p := *req.ProviderID
		providerID = &p
	}
	return clientID, providerID, nil
}

// load returns a non-deleted appointment, or a deleted one for superadmins.
func (s *Service) load(ctx context.Context, id auth.Identity, apptID uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, apptID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("appointment not found")
		}
		return nil, err
	}
	if a.IsDeleted && id.Role != auth.RoleSuperadmin {
		return nil, apperr.NotFound("appointment not found")
	}
	return a, nil
}

// Get returns one appointment visible to the caller.
func (s *Service) Get(ctx context.Context, id auth.Identity, apptID uuid.UUID) (*Appointment, error) {
	caller, err := callerOf(id)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, apptID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("appointment not found")
		}
		return nil, err
	}
	if a.IsDeleted {
		return nil, apperr.NotFound("appointment not found")
	}
	if !CanView(id.Role, a, caller) {
		return nil, apperr.Forbidden("not a participant of this appointment")
	}
	return a, nil
}

// Edit applies a partial update. The overlap check runs only when the
// resulting booking could collide with another: its time range moved, its
// provider changed, or it was restored from deleted. The write is guarded
// by the version read here, so an edit based on a stale copy fails with
// ConflictError instead of overwriting a concurrent change.
func (s *Service) Edit(ctx context.Context, id auth.Identity, apptID uuid.UUID, p Patch) (*Appointment, error) {
	caller, err := callerOf(id)
	if err != nil {
		return nil, err
	}
	current, err := s.load(ctx, id, apptID)
	if err != nil {
		return nil, err
	}
	if !CanEdit(id.Role, current, caller) {
		return nil, apperr.Forbidden("you may not edit this appointment")
	}

	next := *current
	if p.InterventionType != nil {
		kind, ok := ParseInterventionType(*p.InterventionType)
		if !ok {
			return nil, apperr.Newf(apperr.KindValidation, "intervention_type must be %q or %q", InterventionTattoo, InterventionPiercing)
		}
		next.InterventionType = kind
	}
	if err := validatePrice(p.Price); err != nil {
		return nil, err
	}
	if p.Price != nil {
		next.Price = p.Price
	}
	if p.IsPublished != nil {
		next.IsPublished = *p.IsPublished
	}
	if p.IsPaid != nil {
		next.IsPaid = *p.IsPaid
	}
	if p.IsDeleted != nil {
		next.IsDeleted = *p.IsDeleted
	}

	if p.StartTime != nil {
		next.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		next.EndTime = p.EndTime.UTC()
	}
	startChanged := !next.StartTime.Equal(current.StartTime)
	rangeChanged := startChanged || !next.EndTime.Equal(current.EndTime)
	if startChanged && !next.StartTime.After(s.now()) {
		return nil, apperr.InvalidDate("start_time must be in the future")
	}
	if rangeChanged && next.EndTime.Before(next.StartTime) {
		return nil, apperr.InvalidRange("end_time must not be before start_time")
	}

	providerChanged, err := s.reassign(ctx, id.Role, current, &next, p)
	if err != nil {
		return nil, err
	}

	restored := current.IsDeleted && !next.IsDeleted
	write := func(ctx context.Context) error { return s.repo.Update(ctx, &next) }
	if !next.IsDeleted && (rangeChanged || providerChanged || restored) {
		err = s.withProvider(ctx, next.ProviderID, func(ctx context.Context) error {
			conflict, err := s.overlap.HasConflict(ctx, next.ProviderID, next.StartTime, next.EndTime, &next.ID)
			if err != nil {
				return err
			}
			if conflict {
				return s.rejectConflict(*next.ProviderID, next.StartTime, next.EndTime)
			}
			return write(ctx)
		})
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	evt := EventUpdated
	if next.IsDeleted && !current.IsDeleted {
		evt = EventDeleted
	}
	s.publish(ctx, evt, &next)
	return &next, nil
}

// reassign applies participant changes permitted for role and reports
// whether the provider changed. Supplying the current value is a no-op.
func (s *Service) reassign(ctx context.Context, role auth.Role, current, next *Appointment, p Patch) (bool, error) {
	rule := reassignRules[role]

	if p.ClientID != nil && *p.ClientID != current.ClientID {
		if !rule.client {
			return false, apperr.Forbidden("your role may not reassign the client")
		}
		if err := s.checkRef(ctx, "client_id", *p.ClientID, rule.clientRole); err != nil {
			return false, err
		}
		next.ClientID = *p.ClientID
	}

	if p.ProviderID == nil || (current.HasProvider() && *p.ProviderID == *current.ProviderID) {
		return false, nil
	}
	if !rule.provider {
		return false, apperr.Forbidden("your role may not reassign the provider")
	}
	if *p.ProviderID == uuid.Nil {
		return false, apperr.Validation("provider_id must reference a user")
	}
	if err := s.checkRef(ctx, "provider_id", *p.ProviderID, rule.providerRole); err != nil {
		return false, err
	}
	pid := *p.ProviderID
	next.ProviderID = &pid
	return true, nil
}

// Delete soft-deletes an appointment.
func (s *Service) Delete(ctx context.Context, id auth.Identity, apptID uuid.UUID) error {
	caller, err := callerOf(id)
	if err != nil {
		return err
	}
	a, err := s.repo.GetByID(ctx, apptID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("appointment not found")
		}
		return err
	}
	if a.IsDeleted {
		return apperr.NotFound("appointment not found")
	}
	if !CanDelete(id.Role, a, caller) {
		return apperr.Forbidden("you may not delete this appointment")
	}
	if err := s.repo.SoftDelete(ctx, apptID); err != nil {
		return err
	}
	a.IsDeleted = true
	s.publish(ctx, EventDeleted, a)
	return nil
}

// List returns the caller's appointments split into upcoming and past.
func (s *Service) List(ctx context.Context, id auth.Identity) (*Agenda, error) {
	caller, err := callerOf(id)
	if err != nil {
		return nil, err
	}
	scope, ok := ListScope(id.Role, caller)
	if !ok {
		return nil, apperr.Forbidden("role may not list appointments")
	}
	items, err := s.repo.Search(ctx, scope)
	if err != nil {
		return nil, err
	}
	sortByStart(items)

	now := s.now()
	agenda := &Agenda{Upcoming: []*Appointment{}, Past: []*Appointment{}}
	for _, a := range items {
		if a.StartTime.Before(now) {
			agenda.Past = append(agenda.Past, a)
		} else {
			agenda.Upcoming = append(agenda.Upcoming, a)
		}
	}
	if id.Role == auth.RoleSuperadmin {
		agenda.All = items
		if agenda.All == nil {
			agenda.All = []*Appointment{}
		}
	}
	return agenda, nil
}

// CheckAvailability returns a ConflictError when the provider is booked
// anywhere in [start, end).
func (s *Service) CheckAvailability(ctx context.Context, req AvailabilityRequest) error {
	var missing []string
	if req.StartTime == nil {
		missing = append(missing, "start_time")
	}
	if req.EndTime == nil {
		missing = append(missing, "end_time")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}
	if req.EndTime.Before(*req.StartTime) {
		return apperr.InvalidRange("end_time must not be before start_time")
	}
	conflict, err := s.overlap.HasConflict(ctx, req.ProviderID, req.StartTime.UTC(), req.EndTime.UTC(), nil)
	if err != nil {
		return err
	}
	if conflict {
		return apperr.Conflict("the provider already has an appointment in this time range")
	}
	return nil
}

// Filter lists the caller's visible appointments matching c.
func (s *Service) Filter(ctx context.Context, id auth.Identity, c FilterCriteria) ([]*Appointment, error) {
	caller, err := callerOf(id)
	if err != nil {
		return nil, err
	}
	q, ok := ListScope(id.Role, caller)
	if !ok {
		return nil, apperr.Forbidden("role may not list appointments")
	}

	if c.ProviderID != nil {
		if q.ProviderID != nil && *q.ProviderID != *c.ProviderID {
			return []*Appointment{}, nil
		}
		q.ProviderID = c.ProviderID
	}
	if c.From != nil && c.To != nil && c.To.Before(*c.From) {
		return nil, apperr.InvalidRange("to must not be before from")
	}
	q.From, q.To = c.From, c.To
	if c.InterventionType != nil {
		kind, ok := ParseInterventionType(*c.InterventionType)
		if !ok {
			return nil, apperr.Newf(apperr.KindValidation, "intervention_type must be %q or %q", InterventionTattoo, InterventionPiercing)
		}
		q.InterventionType = &kind
	}

	items, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	sortByStart(items)
	return items, nil
}
