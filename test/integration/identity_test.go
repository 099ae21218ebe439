//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/inkbook/inkbook/internal/domain/identity"
	"github.com/inkbook/inkbook/internal/platform/apperr"
	"github.com/inkbook/inkbook/internal/platform/auth"
)

func signUpFor(email string) identity.SignUpRequest {
	return identity.SignUpRequest{
		Name:     "Test",
		LastName: "User",
		Email:    email,
		Username: email,
		Password: "password",
	}
}

func TestIdentity_SignUpLoginAndLookup(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	u, err := e.users.SignUp(ctx, signUpFor("Ada@Example.com"))
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	resp, err := e.users.Login(ctx, identity.LoginRequest{Email: "ada@example.com", Password: "password"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.ID != u.ID || resp.Token == "" {
		t.Errorf("unexpected login response %+v", resp)
	}

	got, err := e.users.FindByEmail(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.PasswordHash == "" {
		t.Error("expected password hash to be loaded")
	}

	ok, err := e.users.ExistsWithRole(ctx, u.ID, auth.RoleClient)
	if err != nil || !ok {
		t.Errorf("expected client to exist, got %v, %v", ok, err)
	}
	ok, err = e.users.ExistsWithRole(ctx, u.ID, auth.RoleProvider)
	if err != nil || ok {
		t.Errorf("expected no provider role, got %v, %v", ok, err)
	}
}

func TestIdentity_DuplicateEmail(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	if _, err := e.users.SignUp(ctx, signUpFor("ada@example.com")); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := e.users.SignUp(ctx, signUpFor("ADA@example.com")); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// The unique index rejects the row even when the service check is bypassed.
	_, err := globalPool.Exec(ctx,
		`INSERT INTO app_user (id, name, last_name, email, username, password_hash, role)
		 VALUES (gen_random_uuid(), 'x', 'y', 'ADA@EXAMPLE.COM', 'x', 'hash', 'client')`)
	if err := apperr.FromPG("insert user", err); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict from unique index, got %v", err)
	}
}

func TestIdentity_AdminOperations(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	root, err := e.users.CreateSuperadmin(ctx, signUpFor("root@example.com"))
	if err != nil {
		t.Fatalf("create superadmin: %v", err)
	}
	admin := auth.Identity{SubjectID: root.ID.String(), Role: auth.RoleSuperadmin}
	client := e.signUp(t, "client@example.com", "client")
	artist := e.signUp(t, "artist@example.com", "provider")

	users, total, err := e.users.ListUsers(ctx, admin, 2, 0)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if total != 3 || len(users) != 2 {
		t.Errorf("expected 2 of 3, got %d of %d", len(users), total)
	}

	clientUser, err := e.users.Profile(ctx, client)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if _, err := e.users.ChangeRole(ctx, admin, clientUser.ID, "provider"); err != nil {
		t.Fatalf("change role: %v", err)
	}
	role, err := e.users.ResolveSubject(ctx, client.SubjectID)
	if err != nil || role != auth.RoleProvider {
		t.Errorf("expected provider after role change, got %s, %v", role, err)
	}

	artistUser, err := e.users.Profile(ctx, artist)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if err := e.users.DeleteUser(ctx, admin, artistUser.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	providers, err := e.users.ListProviders(ctx, admin, false)
	if err != nil {
		t.Fatalf("list providers: %v", err)
	}
	if len(providers) != 1 {
		t.Errorf("expected one active provider, got %d", len(providers))
	}
	providers, err = e.users.ListProviders(ctx, admin, true)
	if err != nil {
		t.Fatalf("list providers: %v", err)
	}
	if len(providers) != 2 {
		t.Errorf("expected deleted provider to be included, got %d", len(providers))
	}
}
