//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/inkbook/inkbook/internal/domain/booking"
	"github.com/inkbook/inkbook/internal/domain/identity"
	"github.com/inkbook/inkbook/internal/platform/auth"
	"github.com/inkbook/inkbook/internal/platform/db"
	"github.com/inkbook/inkbook/internal/platform/lock"
)

// globalPool is shared by every test and initialized once in TestMain.
var globalPool *pgxpool.Pool

// INKBOOK_TEST_DATABASE_URL points the suite at an existing database instead
// of starting a container.
func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("INKBOOK_TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		c, err := startPostgres(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
			os.Exit(1)
		}
		connStr, cleanup = c.dsn, c.stop
	}

	pool, err := db.NewPool(ctx, connStr, 20, 2)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func resetDB(t *testing.T) {
	t.Helper()
	if _, err := globalPool.Exec(context.Background(), `TRUNCATE appointment, app_user CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// env bundles real services backed by the test database.
type env struct {
	users    *identity.Service
	bookings *booking.Service
	now      time.Time
}

func newEnv(t *testing.T, locker lock.Serializer) *env {
	t.Helper()
	resetDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	clock := func() time.Time { return now }
	users := identity.NewService(
		identity.NewUserRepoPG(globalPool),
		auth.NewPasswordHasher(4),
		auth.NewTokenIssuer("integration-secret", "inkbook", time.Hour),
		identity.WithClock(clock),
	)
	if locker == nil {
		locker = db.NewAdvisoryLocker(globalPool)
	}
	bookings := booking.NewService(
		booking.NewAppointmentRepoPG(globalPool),
		users,
		locker,
		booking.WithClock(clock),
		booking.WithLogger(zerolog.Nop()),
	)
	return &env{users: users, bookings: bookings, now: now}
}

func (e *env) signUp(t *testing.T, email, role string) auth.Identity {
	t.Helper()
	u, err := e.users.SignUp(context.Background(), identity.SignUpRequest{
		Name:     "Test",
		LastName: "User",
		Email:    email,
		Username: email,
		Password: "password",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return auth.Identity{SubjectID: u.ID.String(), Role: u.Role}
}

// slot returns a range starting the given number of hours from now.
func (e *env) slot(fromHours, toHours int) (*time.Time, *time.Time) {
	s := e.now.Add(time.Duration(fromHours) * time.Hour)
	f := e.now.Add(time.Duration(toHours) * time.Hour)
	return &s, &f
}
