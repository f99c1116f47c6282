package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/hierarchy"
	"github.com/stackgate/admind/pkg/policy"
)

type recordingInvalidator struct {
	domains []string
}

func (r *recordingInvalidator) InvalidateDomainRoutes(_ context.Context, domain string) error {
	r.domains = append(r.domains, domain)
	return nil
}

func newTestService(t *testing.T) (*Service, policy.Store, *recordingInvalidator) {
	t.Helper()
	store := NewStore(newTestDB(t))
	engine, err := policy.NewMemoryEngine()
	require.NoError(t, err)
	h := hierarchy.NewManager(engine, nil, nil)
	inv := &recordingInvalidator{}
	return NewService(store, h, engine, inv, nil), engine, inv
}

func TestServiceCreateValidates(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "acme", CreateRoleRequest{})
	assert.True(t, errdefs.IsValidation(err))

	_, err = s.Create(ctx, "acme", CreateRoleRequest{Name: "x", Status: "bogus"})
	assert.True(t, errdefs.IsValidation(err))
}

func TestServiceCreateConflict(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "admin"})
	require.NoError(t, err)

	_, err = s.Create(ctx, "acme", CreateRoleRequest{Name: "admin"})
	require.Error(t, err)
	assert.True(t, errdefs.IsConflict(err))
}

func TestServiceCreateInvalidatesDomain(t *testing.T) {
	s, _, inv := newTestService(t)

	_, err := s.Create(context.Background(), "acme", CreateRoleRequest{Name: "admin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, inv.domains)
}

func TestServiceListEnrichesParents(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	parent, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "parent"})
	require.NoError(t, err)
	child, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "child"})
	require.NoError(t, err)

	require.NoError(t, s.SetParents(ctx, "acme", child.ID, []string{parent.ID}))

	list, err := s.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)

	byName := map[string]*Role{list[0].Name: list[0], list[1].Name: list[1]}
	assert.Equal(t, []string{parent.ID}, byName["child"].ParentRoleIDs)
	assert.Empty(t, byName["parent"].ParentRoleIDs)
}

func TestServiceSetParentsRejectsCycle(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "a"})
	require.NoError(t, err)
	b, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "b"})
	require.NoError(t, err)

	require.NoError(t, s.SetParents(ctx, "acme", a.ID, []string{b.ID}))

	err = s.SetParents(ctx, "acme", b.ID, []string{a.ID})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestServiceSetParentsRejectsUnknownParent(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "a"})
	require.NoError(t, err)

	err = s.SetParents(ctx, "acme", a.ID, []string{"ghost"})
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestServiceDeletePurgesPolicyState(t *testing.T) {
	s, engine, _ := newTestService(t)
	ctx := context.Background()

	parent, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "parent"})
	require.NoError(t, err)
	child, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "child"})
	require.NoError(t, err)

	require.NoError(t, s.SetParents(ctx, "acme", child.ID, []string{parent.ID}))
	require.NoError(t, s.AssignToUser(ctx, "acme", parent.ID, "alice"))
	_, err = engine.AddPolicies([][]string{
		{policy.RoleSubject(parent.ID), "/a", "read", policy.EffectAllow},
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "acme", parent.ID))

	// No permission tuples, no inheritance edges, no memberships remain.
	perms, err := engine.GetPermissionsForSubject(policy.RoleSubject(parent.ID))
	require.NoError(t, err)
	assert.Empty(t, perms)

	edges, err := engine.GetGroupingPolicy()
	require.NoError(t, err)
	assert.Empty(t, edges)

	_, err = s.Get(ctx, "acme", parent.ID)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestServiceCrossDomainRoleReadsAsMissing(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	role, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "admin"})
	require.NoError(t, err)

	_, err = s.Get(ctx, "globex", role.ID)
	assert.True(t, errdefs.IsNotFound(err))

	name := "renamed"
	_, err = s.Update(ctx, "globex", role.ID, UpdateRoleRequest{Name: &name})
	assert.True(t, errdefs.IsNotFound(err))

	err = s.Delete(ctx, "globex", role.ID)
	assert.True(t, errdefs.IsNotFound(err))

	err = s.AssignToUser(ctx, "globex", role.ID, "mallory")
	assert.True(t, errdefs.IsNotFound(err))

	err = s.SetParents(ctx, "globex", role.ID, nil)
	assert.True(t, errdefs.IsNotFound(err))

	// The row is untouched and still visible to its own domain.
	got, err := s.Get(ctx, "acme", role.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Name)
}

func TestServiceAssignAndRevokeUser(t *testing.T) {
	s, engine, _ := newTestService(t)
	ctx := context.Background()

	role, err := s.Create(ctx, "acme", CreateRoleRequest{Name: "admin"})
	require.NoError(t, err)
	_, err = engine.AddPolicies([][]string{
		{policy.RoleSubject(role.ID), "/a", "read", policy.EffectAllow},
	})
	require.NoError(t, err)

	require.NoError(t, s.AssignToUser(ctx, "acme", role.ID, "alice"))

	allowed, err := engine.Enforce(policy.UserSubject("alice"), "/a", "read")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, s.RevokeFromUser(ctx, "acme", role.ID, "alice"))

	allowed, err = engine.Enforce(policy.UserSubject("alice"), "/a", "read")
	require.NoError(t, err)
	assert.False(t, allowed)
}
