package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/inkbook/inkbook/internal/platform/apperr"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller attached to a request.
type Identity struct {
	SubjectID string
	Role      Role
}

// SubjectResolver looks up the current role of a subject. It returns an error
// when the subject no longer exists or has been deleted.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, subjectID string) (Role, error)
}

// Authenticator turns a presented credential into an Identity.
type Authenticator struct {
	tokens   *TokenIssuer
	resolver SubjectResolver
}

func NewAuthenticator(tokens *TokenIssuer, resolver SubjectResolver) *Authenticator {
	return &Authenticator{tokens: tokens, resolver: resolver}
}

// Authenticate resolves a bearer credential. Role comes from the directory so
// role changes and deletions take effect without reissuing tokens.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, apperr.Unauthorized("missing credential")
	}
	claims, err := a.tokens.Parse(credential)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.KindAuth, "invalid or expired token", err)
	}
	role, err := a.resolver.ResolveSubject(ctx, claims.Subject)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.KindAuth, "unknown subject", err)
	}
	return Identity{SubjectID: claims.Subject, Role: role}, nil
}

// Middleware requires a valid "Authorization: Bearer <token>" header.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return apperr.Unauthorized("missing authorization header")
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return apperr.Unauthorized("invalid authorization format")
			}

			id, err := a.Authenticate(c.Request().Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				return err
			}

			c.Set("subject_id", id.SubjectID)
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller identity set by the middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
