package access

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/es"
)

// RoleEvent is the closed set of events recorded against a Role.
type RoleEvent struct {
	Type          string          `json:"type"`
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name,omitempty"`
	PermissionSet string          `json:"permission_set,omitempty"`
	AuditInfo     authz.AuditInfo `json:"audit_info"`
}

func (e RoleEvent) Kind() string { return e.Type }

const (
	RoleInitialized          = "initialized"
	RolePermissionSetAdded   = "permission_set_added"
	RolePermissionSetRemoved = "permission_set_removed"
)

// Role is a named bundle of permission sets assignable to users. The
// platform seeds one superuser role (authz.RoleNameSuperuser) at bootstrap
// that bypasses grant checks entirely; every other role's authority comes
// solely from the permission sets added to it.
type Role struct {
	ID     string
	Name   string
	events *es.EntityEvents[RoleEvent]
}

func NewRole(name string, audit authz.AuditInfo) *Role {
	id := uuid.NewString()

	return &Role{
		ID:   id,
		Name: name,
		events: es.NewEntityEvents(id, RoleEvent{
			Type: RoleInitialized, ID: id, Name: name, AuditInfo: audit,
		}),
	}
}

// GrantedPermissionSets returns the permission sets currently granted to
// the role, folding every Added/Removed event in order.
func (r *Role) GrantedPermissionSets() []string {
	granted := map[string]bool{}

	for _, e := range r.events.All() {
		switch e.Type {
		case RolePermissionSetAdded:
			granted[e.PermissionSet] = true
		case RolePermissionSetRemoved:
			delete(granted, e.PermissionSet)
		}
	}

	out := make([]string, 0, len(granted))
	for ps := range granted {
		out = append(out, ps)
	}

	return out
}

func (r *Role) hasGrant(permissionSet string) bool {
	for _, g := range r.GrantedPermissionSets() {
		if g == permissionSet {
			return true
		}
	}

	return false
}

// AddPermissionSet grants permissionSet to the role. Idempotent: granting
// an already-held permission set is a no-op.
func (r *Role) AddPermissionSet(permissionSet string, audit authz.AuditInfo) es.Idempotent[struct{}] {
	if r.hasGrant(permissionSet) {
		return es.Ignored[struct{}]()
	}

	r.events.Append(RoleEvent{Type: RolePermissionSetAdded, PermissionSet: permissionSet, AuditInfo: audit})

	return es.Executed(struct{}{})
}

// RemovePermissionSet revokes permissionSet from the role. Idempotent:
// removing a permission set the role never held is a no-op.
func (r *Role) RemovePermissionSet(permissionSet string, audit authz.AuditInfo) es.Idempotent[struct{}] {
	if !r.hasGrant(permissionSet) {
		return es.Ignored[struct{}]()
	}

	r.events.Append(RoleEvent{Type: RolePermissionSetRemoved, PermissionSet: permissionSet, AuditInfo: audit})

	return es.Executed(struct{}{})
}

func reduceRole(events *es.EntityEvents[RoleEvent]) (Role, error) {
	r := Role{events: events}

	for _, e := range events.All() {
		if e.Type == RoleInitialized {
			r.ID = e.ID
			r.Name = e.Name
		}
	}

	return r, nil
}

func accessRoleEvents(r *Role) *es.EntityEvents[RoleEvent] { return r.events }
