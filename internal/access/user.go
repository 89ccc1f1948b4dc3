// Package access implements the platform's identity and RBAC domain:
// event-sourced User and Role aggregates, and the fixed PermissionSet
// catalog every Role grants from, feeding internal/authz's Enforcer.
package access

import (
	"time"

	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/es"
)

// UserEvent is the closed set of events recorded against a User.
type UserEvent struct {
	Type             string          `json:"type"`
	ID               string          `json:"id,omitempty"`
	Email            string          `json:"email,omitempty"`
	RoleID           string          `json:"role_id,omitempty"`
	AuthenticationID string          `json:"authentication_id,omitempty"`
	AuditInfo        authz.AuditInfo `json:"audit_info"`
}

func (e UserEvent) Kind() string { return e.Type }

const (
	UserInitialized             = "initialized"
	UserAuthenticationIDUpdated = "authentication_id_updated"
	UserRoleUpdated             = "role_updated"
)

// User is the identity record behind one human operator: an email, the
// role currently assigned (always present, never nil, since a role is
// required at creation), and an optional external authentication
// identifier (issued once the operator's IdP account is linked).
type User struct {
	ID               string
	Email            string
	AuthenticationID string
	events           *es.EntityEvents[UserEvent]
}

// NewUser starts a brand-new User, already assigned roleID.
func NewUser(email, roleID string, audit authz.AuditInfo) *User {
	id := uuid.NewString()

	return &User{
		ID:    id,
		Email: email,
		events: es.NewEntityEvents(id, UserEvent{
			Type: UserInitialized, ID: id, Email: email, RoleID: roleID, AuditInfo: audit,
		}),
	}
}

// CreatedAt returns when the user's Initialized event was first
// persisted. Panics if called before the entity has ever been persisted.
func (u *User) CreatedAt() time.Time {
	at, ok := u.events.FirstPersistedAt()
	if !ok {
		panic("access: User.CreatedAt called before the user was persisted")
	}

	return at
}

// CurrentRole returns the role ID currently assigned to the user. A user
// always has a role: it is mandatory from creation.
func (u *User) CurrentRole() string {
	roleID := ""

	for _, e := range u.events.All() {
		switch e.Type {
		case UserInitialized, UserRoleUpdated:
			roleID = e.RoleID
		}
	}

	if roleID == "" {
		panic("access: User has no role assigned")
	}

	return roleID
}

// UpdateRole reassigns the user's role. Returns the previous role ID if
// the assignment actually changed anything, or Ignored if roleID matches
// the user's current role already.
func (u *User) UpdateRole(roleID string, audit authz.AuditInfo) es.Idempotent[string] {
	current := u.CurrentRole()
	if roleID == current {
		return es.Ignored[string]()
	}

	u.events.Append(UserEvent{Type: UserRoleUpdated, RoleID: roleID, AuditInfo: audit})

	return es.Executed(current)
}

// UpdateAuthenticationID links the external authentication identifier
// issued once for this user. Idempotent: relinking the same ID is a
// no-op, since the IdP may redeliver the linking webhook.
func (u *User) UpdateAuthenticationID(authenticationID string) es.Idempotent[struct{}] {
	if u.AuthenticationID == authenticationID {
		return es.Ignored[struct{}]()
	}

	u.AuthenticationID = authenticationID
	u.events.Append(UserEvent{Type: UserAuthenticationIDUpdated, AuthenticationID: authenticationID})

	return es.Executed(struct{}{})
}

func reduceUser(events *es.EntityEvents[UserEvent]) (User, error) {
	u := User{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case UserInitialized:
			u.ID = e.ID
			u.Email = e.Email
		case UserAuthenticationIDUpdated:
			u.AuthenticationID = e.AuthenticationID
		}
	}

	return u, nil
}

func accessUserEvents(u *User) *es.EntityEvents[UserEvent] { return u.events }
