package booking

import (
	"github.com/google/uuid"

	"github.com/inkbook/inkbook/internal/platform/auth"
)

// CanEdit gates edits: clients and providers may only edit appointments
// where they hold that same side; superadmins may edit anything.
func CanEdit(role auth.Role, a *Appointment, caller uuid.UUID) bool {
	switch role {
	case auth.RoleSuperadmin:
		return true
	case auth.RoleClient:
		return a.ClientID == caller
	case auth.RoleProvider:
		return a.HasProvider() && *a.ProviderID == caller
	}
	return false
}

// CanDelete allows superadmins and either participant. Unlike CanEdit the
// caller's role does not pick the side.
func CanDelete(role auth.Role, a *Appointment, caller uuid.UUID) bool {
	return role == auth.RoleSuperadmin || a.IsParticipant(caller)
}

// CanView uses the delete predicate.
func CanView(role auth.Role, a *Appointment, caller uuid.UUID) bool {
	return CanDelete(role, a, caller)
}

// ListScope restricts listings to the caller's own side of the booking.
func ListScope(role auth.Role, caller uuid.UUID) (Query, bool) {
	switch role {
	case auth.RoleSuperadmin:
		return Query{}, true
	case auth.RoleClient:
		return Query{ClientID: &caller}, true
	case auth.RoleProvider:
		return Query{ProviderID: &caller}, true
	}
	return Query{}, false
}

type source int

const (
	// fromCaller binds the participant to the caller.
	fromCaller source = iota
	// fromBody takes the participant from the request and requires it.
	fromBody
	// fromBodyOptional takes the participant from the request if present.
	fromBodyOptional
)

// participantRule says where each side of a new booking comes from and
// what role a referenced user must hold. An empty role accepts any active
// user.
type participantRule struct {
	client       source
	provider     source
	clientRole   auth.Role
	providerRole auth.Role
}

var createRules = map[auth.Role]participantRule{
	auth.RoleClient: {
		client:       fromCaller,
		provider:     fromBodyOptional,
		providerRole: auth.RoleProvider,
	},
	auth.RoleProvider: {
		client:     fromBody,
		provider:   fromCaller,
		clientRole: auth.RoleClient,
	},
	auth.RoleSuperadmin: {
		client:   fromBody,
		provider: fromBodyOptional,
	},
}

// reassignRule lists which participants a role may change on edit and the
// role a new participant must hold.
type reassignRule struct {
	client       bool
	provider     bool
	clientRole   auth.Role
	providerRole auth.Role
}

var reassignRules = map[auth.Role]reassignRule{
	auth.RoleClient:     {provider: true, providerRole: auth.RoleProvider},
	auth.RoleProvider:   {client: true, clientRole: auth.RoleClient},
	auth.RoleSuperadmin: {client: true, provider: true},
}
