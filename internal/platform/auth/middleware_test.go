package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkbook/inkbook/internal/platform/apperr"
)

type stubResolver map[string]Role

func (s stubResolver) ResolveSubject(_ context.Context, id string) (Role, error) {
	r, ok := s[id]
	if !ok {
		return "", errors.New("user not found")
	}
	return r, nil
}

func newTestAuthenticator() (*Authenticator, *TokenIssuer) {
	tokens := NewTokenIssuer("test-secret-key-for-unit-tests-only", "inkbook", time.Hour)
	return NewAuthenticator(tokens, stubResolver{"u-1": RoleProvider}), tokens
}

func runMiddleware(t *testing.T, a *Authenticator, header string) (echo.Context, *httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen echo.Context
	h := a.Middleware()(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})
	err := h(c)
	return seen, rec, err
}

func TestMiddleware_MissingHeader(t *testing.T) {
	a, _ := newTestAuthenticator()
	_, _, err := runMiddleware(t, a, "")
	if !apperr.Is(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestMiddleware_InvalidFormat(t *testing.T) {
	a, _ := newTestAuthenticator()
	tests := []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"}
	for _, header := range tests {
		t.Run(header, func(t *testing.T) {
			_, _, err := runMiddleware(t, a, header)
			if !apperr.Is(err, apperr.KindAuth) {
				t.Errorf("expected auth error for %q, got %v", header, err)
			}
		})
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	a, _ := newTestAuthenticator()
	_, _, err := runMiddleware(t, a, "Bearer not.a.jwt")
	if !apperr.Is(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestMiddleware_UnknownSubject(t *testing.T) {
	a, tokens := newTestAuthenticator()
	tok, _, err := tokens.Issue("ghost", RoleClient)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, _, err = runMiddleware(t, a, "Bearer "+tok)
	if !apperr.Is(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestMiddleware_ValidToken_RoleFromDirectory(t *testing.T) {
	a, tokens := newTestAuthenticator()
	// Token still says client; the directory says provider.
	tok, _, err := tokens.Issue("u-1", RoleClient)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, rec, err := runMiddleware(t, a, "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	id, ok := IdentityFromContext(c.Request().Context())
	if !ok {
		t.Fatal("expected identity in context")
	}
	if id.SubjectID != "u-1" || id.Role != RoleProvider {
		t.Errorf("unexpected identity %+v", id)
	}
}

func TestIdentityFromContext_Empty(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("expected no identity in empty context")
	}
}
