package authz

import (
	"context"

	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/apptrace"
)

// RoleGrants resolves the permission sets currently granted to a role. It
// is satisfied by internal/access's role repository; Enforcer depends on
// the interface rather than the concrete type so the permission primitives
// in this package stay free of any event-sourcing or storage concern.
type RoleGrants interface {
	PermissionSetsForRole(ctx context.Context, roleID string) ([]string, error)
	RoleNameForRole(ctx context.Context, roleID string) (string, error)
}

// SubjectRoles resolves the role currently assigned to a subject.
type SubjectRoles interface {
	RoleForSubject(ctx context.Context, subjectID string) (string, error)
}

// Enforcer is the single entry point every write (and access-controlled
// read) path calls before acting. It never panics on a denial: callers
// get back an *apperr.Error with KindAuthorizationDenied, which adapters
// map onto a 403 the same way they map any other domain error.
type Enforcer struct {
	roles  SubjectRoles
	grants RoleGrants
}

func NewEnforcer(roles SubjectRoles, grants RoleGrants) *Enforcer {
	return &Enforcer{roles: roles, grants: grants}
}

// EnforcePermission checks whether subject may take permission.Action on
// permission.Object. A Subject{System: true} (the scheduler, an outbox
// consumer reacting to another aggregate's event) always passes: system
// actions are not subject to human RBAC.
func (e *Enforcer) EnforcePermission(ctx context.Context, subject Subject, permission Permission) error {
	ctx, span := apptrace.Start(ctx, "authz", "enforce_permission")
	defer span.End()

	if subject.System {
		return nil
	}

	roleID, err := e.roles.RoleForSubject(ctx, subject.ID)
	if err != nil {
		apptrace.HandleSpanError(span, "resolve subject role", err)
		return err
	}

	roleName, err := e.grants.RoleNameForRole(ctx, roleID)
	if err != nil {
		apptrace.HandleSpanError(span, "resolve role name", err)
		return err
	}

	if roleName == RoleNameSuperuser {
		return nil
	}

	granted, err := e.grants.PermissionSetsForRole(ctx, roleID)
	if err != nil {
		apptrace.HandleSpanError(span, "resolve role grants", err)
		return err
	}

	required := requiredPermissionSet(permission.Action)

	for _, g := range granted {
		if permissionSet(g) == required {
			return nil
		}
	}

	return apperr.AuthorizationDenied(string(permission.Object.Kind()),
		"subject %s (role %s) lacks %s for %s", subject.ID, roleID, permission.Action, permission.Object)
}
