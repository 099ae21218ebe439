package identity

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inkbook/inkbook/internal/platform/apperr"
	"github.com/inkbook/inkbook/internal/platform/auth"
)

const DefaultMinAge = 16

type Service struct {
	repo   UserRepository
	hasher *auth.PasswordHasher
	tokens *auth.TokenIssuer
	minAge int
	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Service)

// WithMinAge overrides DefaultMinAge. Values below 1 are ignored.
func WithMinAge(years int) Option {
	return func(s *Service) {
		if years > 0 {
			s.minAge = years
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		minAge: DefaultMinAge,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (s *Service) checkAge(birth *Date) error {
	if birth == nil || birth.IsZero() {
		return nil
	}
	if AgeOn(birth.Time, s.now().UTC()) < s.minAge {
		return apperr.Newf(apperr.KindInvalidDate, "must be at least %d years old", s.minAge)
	}
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string, self uuid.UUID) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != self {
		return apperr.Conflict("email is already registered")
	}
	return nil
}

// SignUp registers a client or provider. Superadmins are only created
// through CreateSuperadmin.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	role := auth.RoleClient
	if strings.TrimSpace(req.Role) != "" {
		r, ok := auth.ParseRole(req.Role)
		if !ok {
			return nil, apperr.Newf(apperr.KindValidation, "unknown role %q", req.Role)
		}
		if r == auth.RoleSuperadmin {
			return nil, apperr.Validation("role superadmin cannot be self-assigned")
		}
		role = r
	}
	return s.register(ctx, req, role)
}

// CreateSuperadmin registers a superadmin. Only reachable from the CLI.
func (s *Service) CreateSuperadmin(ctx context.Context, req SignUpRequest) (*User, error) {
	return s.register(ctx, req, auth.RoleSuperadmin)
}

func (s *Service) register(ctx context.Context, req SignUpRequest, role auth.Role) (*User, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", req.Name},
		{"last_name", req.LastName},
		{"email", req.Email},
		{"username", req.Username},
		{"password", req.Password},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}

	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, apperr.Validation("email is not a valid address")
	}
	if err := s.checkAge(req.BirthDate); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email, uuid.Nil); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	u := &User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Role:         role,
	}
	if req.BirthDate != nil && !req.BirthDate.IsZero() {
		bd := req.BirthDate.Time
		u.BirthDate = &bd
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(role)).Msg("user registered")
	return u, nil
}

// Login verifies credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var missing []string
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}

	invalid := apperr.Unauthorized("invalid email or password")
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if u.IsDeleted || !s.hasher.Check(u.PasswordHash, req.Password) {
		return nil, invalid
	}

	token, exp, err := s.tokens.Issue(u.ID.String(), u.Role)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "issue token", err)
	}
	return &LoginResponse{Token: token, ExpiresAt: exp, User: u}, nil
}

// FindByID returns an active user.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	if u.IsDeleted {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// FindByEmail returns an active user.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	if u.IsDeleted {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

func (s *Service) ExistsWithRole(ctx context.Context, id uuid.UUID, role auth.Role) (bool, error) {
	return s.repo.ExistsWithRole(ctx, id, role)
}

// ResolveSubject maps a token subject to its current role.
func (s *Service) ResolveSubject(ctx context.Context, subjectID string) (auth.Role, error) {
	id, err := uuid.Parse(subjectID)
	if err != nil {
		return "", apperr.Unauthorized("invalid subject")
	}
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func (s *Service) self(ctx context.Context, id auth.Identity) (*User, error) {
	uid, err := uuid.Parse(id.SubjectID)
	if err != nil {
		return nil, apperr.Unauthorized("invalid subject")
	}
	return s.FindByID(ctx, uid)
}

func (s *Service) Profile(ctx context.Context, id auth.Identity) (*User, error) {
	return s.self(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id auth.Identity, p ProfilePatch) (*User, error) {
	u, err := s.self(ctx, id)
	if err != nil {
		return nil, err
	}

	set := func(dst *string, v *string, field string) error {
		if v == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" {
			return apperr.Newf(apperr.KindValidation, "%s must not be empty", field)
		}
		*dst = trimmed
		return nil
	}
	if err := set(&u.Name, p.Name, "name"); err != nil {
		return nil, err
	}
	if err := set(&u.LastName, p.LastName, "last_name"); err != nil {
		return nil, err
	}
	if err := set(&u.Username, p.Username, "username"); err != nil {
		return nil, err
	}
	if p.Email != nil {
		email := normalizeEmail(*p.Email)
		if !validEmail(email) {
			return nil, apperr.Validation("email is not a valid address")
		}
		if email != u.Email {
			if err := s.ensureEmailFree(ctx, email, u.ID); err != nil {
				return nil, err
			}
			u.Email = email
		}
	}
	if p.BirthDate != nil {
		if err := s.checkAge(p.BirthDate); err != nil {
			return nil, err
		}
		if p.BirthDate.IsZero() {
			u.BirthDate = nil
		} else {
			bd := p.BirthDate.Time
			u.BirthDate = &bd
		}
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ListProviders lists provider accounts. Deleted providers are only
// included for superadmins that ask for them.
func (s *Service) ListProviders(ctx context.Context, id auth.Identity, includeDeleted bool) ([]*User, error) {
	if id.Role != auth.RoleSuperadmin {
		includeDeleted = false
	}
	items, err := s.repo.ListByRole(ctx, auth.RoleProvider, includeDeleted)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*User{}
	}
	return items, nil
}

func requireSuperadmin(id auth.Identity) error {
	if id.Role != auth.RoleSuperadmin {
		return apperr.Forbidden("superadmin role required")
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, id auth.Identity, limit, offset int) ([]*User, int, error) {
	if err := requireSuperadmin(id); err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*User{}
	}
	return items, total, nil
}

func (s *Service) ChangeRole(ctx context.Context, id auth.Identity, userID uuid.UUID, role string) (*User, error) {
	if err := requireSuperadmin(id); err != nil {
		return nil, err
	}
	r, ok := auth.ParseRole(role)
	if !ok {
		return nil, apperr.Newf(apperr.KindValidation, "unknown role %q", role)
	}
	u, err := s.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role == r {
		return u, nil
	}
	u.Role = r
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", u.ID.String()).
		Str("role", string(r)).
		Str("changed_by", id.SubjectID).
		Msg("user role changed")
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, id auth.Identity, userID uuid.UUID) error {
	if err := requireSuperadmin(id); err != nil {
		return err
	}
	if id.SubjectID == userID.String() {
		return apperr.Validation("cannot delete your own account")
	}
	if err := s.repo.SoftDelete(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID.String()).Str("deleted_by", id.SubjectID).Msg("user deleted")
	return nil
}
