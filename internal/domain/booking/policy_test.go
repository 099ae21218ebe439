package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkbook/inkbook/internal/platform/auth"
)

func TestCanEdit(t *testing.T) {
	client, provider, stranger := uuid.New(), uuid.New(), uuid.New()
	a := &Appointment{ClientID: client, ProviderID: &provider}
	unassigned := &Appointment{ClientID: client}

	tests := []struct {
		name   string
		role   auth.Role
		appt   *Appointment
		caller uuid.UUID
		want   bool
	}{
		{"client owner", auth.RoleClient, a, client, true},
		{"client stranger", auth.RoleClient, a, stranger, false},
		{"client claiming provider side", auth.RoleClient, a, provider, false},
		{"provider assigned", auth.RoleProvider, a, provider, true},
		{"provider stranger", auth.RoleProvider, a, stranger, false},
		{"provider claiming client side", auth.RoleProvider, a, client, false},
		{"provider on unassigned", auth.RoleProvider, unassigned, provider, false},
		{"superadmin", auth.RoleSuperadmin, a, stranger, true},
		{"unknown role", auth.Role("guest"), a, client, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanEdit(tt.role, tt.appt, tt.caller); got != tt.want {
				t.Errorf("CanEdit = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanDelete_EitherSide(t *testing.T) {
	client, provider := uuid.New(), uuid.New()
	a := &Appointment{ClientID: client, ProviderID: &provider}

	// Unlike edit, the role does not have to match the side.
	if !CanDelete(auth.RoleProvider, a, client) {
		t.Error("participant on the client side should be able to delete")
	}
	if !CanDelete(auth.RoleClient, a, provider) {
		t.Error("participant on the provider side should be able to delete")
	}
	if CanDelete(auth.RoleClient, a, uuid.New()) {
		t.Error("stranger must not delete")
	}
	if !CanDelete(auth.RoleSuperadmin, a, uuid.New()) {
		t.Error("superadmin may delete anything")
	}
	if CanView(auth.RoleClient, a, uuid.New()) {
		t.Error("view follows the delete predicate")
	}
}

func TestListScope(t *testing.T) {
	caller := uuid.New()
	q, ok := ListScope(auth.RoleClient, caller)
	if !ok || q.ClientID == nil || *q.ClientID != caller || q.ProviderID != nil {
		t.Errorf("unexpected client scope %+v", q)
	}
	q, ok = ListScope(auth.RoleProvider, caller)
	if !ok || q.ProviderID == nil || *q.ProviderID != caller || q.ClientID != nil {
		t.Errorf("unexpected provider scope %+v", q)
	}
	q, ok = ListScope(auth.RoleSuperadmin, caller)
	if !ok || q.ClientID != nil || q.ProviderID != nil {
		t.Errorf("unexpected superadmin scope %+v", q)
	}
	if _, ok := ListScope(auth.Role("guest"), caller); ok {
		t.Error("unknown role must not get a scope")
	}
}

func TestCreateRules_CoverEveryRole(t *testing.T) {
	for _, role := range []auth.Role{auth.RoleClient, auth.RoleProvider, auth.RoleSuperadmin} {
		if _, ok := createRules[role]; !ok {
			t.Errorf("no create rule for %s", role)
		}
		if _, ok := reassignRules[role]; !ok {
			t.Errorf("no reassign rule for %s", role)
		}
	}
	if createRules[auth.RoleClient].client != fromCaller || createRules[auth.RoleProvider].provider != fromCaller {
		t.Error("callers must be bound to their own side")
	}
}

func TestQueryMatches(t *testing.T) {
	provider := uuid.New()
	a := &Appointment{
		ClientID:         uuid.New(),
		ProviderID:       &provider,
		StartTime:        time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC),
		EndTime:          time.Date(2030, 1, 1, 11, 0, 0, 0, time.UTC),
		InterventionType: InterventionTattoo,
	}
	piercing := InterventionPiercing
	before := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	startsInside := time.Date(2030, 1, 1, 10, 30, 0, 0, time.UTC)
	after := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty", Query{}, true},
		{"provider", Query{ProviderID: &provider}, true},
		{"other provider", Query{ProviderID: ptr(uuid.New())}, false},
		{"window ends within", Query{From: &before, To: &startsInside}, true},
		{"window starts within", Query{From: &startsInside, To: &after}, true},
		{"window after", Query{From: &after}, false},
		{"window before", Query{To: &before}, false},
		{"type mismatch", Query{InterventionType: &piercing}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Matches(a); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}

	a.IsDeleted = true
	if (Query{}).Matches(a) {
		t.Error("deleted appointments never match")
	}
}

func TestParseInterventionType(t *testing.T) {
	if got, ok := ParseInterventionType(" Tattoo "); !ok || got != InterventionTattoo {
		t.Errorf("got %q, %v", got, ok)
	}
	if _, ok := ParseInterventionType("laser"); ok {
		t.Error("expected laser to be rejected")
	}
}
