package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRoleSeedsInitializedEvent(t *testing.T) {
	r := NewRole("loan officer", auditInfo())

	assert.Equal(t, "loan officer", r.Name)
	assert.Empty(t, r.GrantedPermissionSets())
}

func TestRoleAddPermissionSetIsIdempotent(t *testing.T) {
	r := NewRole("loan officer", auditInfo())

	result := r.AddPermissionSet("access_viewer", auditInfo())
	assert.True(t, result.IsExecuted())
	assert.ElementsMatch(t, []string{"access_viewer"}, r.GrantedPermissionSets())

	result = r.AddPermissionSet("access_viewer", auditInfo())
	assert.False(t, result.IsExecuted())
}

func TestRoleRemovePermissionSetIsIdempotent(t *testing.T) {
	r := NewRole("loan officer", auditInfo())
	r.AddPermissionSet("access_viewer", auditInfo())

	result := r.RemovePermissionSet("access_viewer", auditInfo())
	assert.True(t, result.IsExecuted())
	assert.Empty(t, r.GrantedPermissionSets())

	result = r.RemovePermissionSet("access_viewer", auditInfo())
	assert.False(t, result.IsExecuted())
}

func TestRoleReAddingAfterRemovalGrantsAgain(t *testing.T) {
	r := NewRole("loan officer", auditInfo())
	r.AddPermissionSet("access_viewer", auditInfo())
	r.RemovePermissionSet("access_viewer", auditInfo())
	r.AddPermissionSet("access_viewer", auditInfo())

	assert.ElementsMatch(t, []string{"access_viewer"}, r.GrantedPermissionSets())
}

func TestReduceRoleRehydratesFromEvents(t *testing.T) {
	seed := NewRole("loan officer", auditInfo())
	seed.AddPermissionSet("access_viewer", auditInfo())
	seed.AddPermissionSet("access_writer", auditInfo())

	rehydrated, err := reduceRole(seed.events)
	assert.NoError(t, err)
	assert.Equal(t, seed.ID, rehydrated.ID)
	assert.Equal(t, "loan officer", rehydrated.Name)
	assert.ElementsMatch(t, []string{"access_viewer", "access_writer"}, rehydrated.GrantedPermissionSets())
}
