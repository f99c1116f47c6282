package menus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgate/admind/pkg/cache"
	"github.com/stackgate/admind/pkg/config"
	"github.com/stackgate/admind/pkg/policy"
)

type resolverFixture struct {
	resolver *Resolver
	store    *Store
	engine   policy.Store
	redis    *miniredis.Miniredis
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()

	store := NewStore(newTestDB(t))
	engine, err := policy.NewMemoryEngine()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewWithClient(client, config.CacheConfig{}, nil)
	t.Cleanup(func() { c.Close() })

	cacheCfg := config.CacheConfig{
		RouteTTL:      30 * time.Minute,
		EmptyRouteTTL: time.Minute,
	}
	resolver := NewResolver(store, engine, c, cacheCfg, config.RoutesConfig{DefaultHome: "home"}, nil)

	return &resolverFixture{resolver: resolver, store: store, engine: engine, redis: mr}
}

func (f *resolverFixture) grantRole(t *testing.T, userID, roleID string) {
	t.Helper()
	_, err := f.engine.AddGroupingPolicies([][]string{
		{policy.UserSubject(userID), policy.RoleSubject(roleID)},
	})
	require.NoError(t, err)
}

func TestResolveEmptyRoleSet(t *testing.T) {
	f := newResolverFixture(t)

	routes, err := f.resolver.GetUserRoutes(context.Background(), "nobody", "acme")
	require.NoError(t, err)
	assert.Equal(t, "", routes.Home)
	assert.Empty(t, routes.Routes)

	// Cached with the short TTL.
	key := cache.UserRoutesKey("acme", "nobody")
	assert.True(t, f.redis.Exists(key))
	assert.Equal(t, time.Minute, f.redis.TTL(key))
}

func TestResolveBuildsSortedTree(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	system := mustCreate(t, f.store, &Menu{Domain: "acme", Name: "system", Path: "/system", Order: 2})
	users := mustCreate(t, f.store, &Menu{Domain: "acme", ParentID: system.ID, Name: "users", Path: "/system/users", Order: 2})
	audit := mustCreate(t, f.store, &Menu{Domain: "acme", ParentID: system.ID, Name: "audit", Path: "/system/audit", Order: 1})
	dash := mustCreate(t, f.store, &Menu{Domain: "acme", Name: "dashboard", Path: "/dashboard", Order: 1})

	require.NoError(t, f.store.AssignToRole(ctx, "admin", []string{system.ID, users.ID, audit.ID, dash.ID}))
	f.grantRole(t, "alice", "admin")

	routes, err := f.resolver.GetUserRoutes(ctx, "alice", "acme")
	require.NoError(t, err)

	require.Len(t, routes.Routes, 2)
	assert.Equal(t, "dashboard", routes.Routes[0].Name)
	assert.Equal(t, "system", routes.Routes[1].Name)

	children := routes.Routes[1].Children
	require.Len(t, children, 2)
	assert.Equal(t, "audit", children[0].Name)
	assert.Equal(t, "users", children[1].Name)

	// First non-hidden leaf in pre-order.
	assert.Equal(t, "dashboard", routes.Home)
}

func TestResolveHomeSkipsHidden(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	hidden := mustCreate(t, f.store, &Menu{Domain: "acme", Name: "secret", Path: "/secret", Order: 1, Hidden: true})
	visible := mustCreate(t, f.store, &Menu{Domain: "acme", Name: "reports", Path: "/reports", Order: 2})

	require.NoError(t, f.store.AssignToRole(ctx, "viewer", []string{hidden.ID, visible.ID}))
	f.grantRole(t, "bob", "viewer")

	routes, err := f.resolver.GetUserRoutes(ctx, "bob", "acme")
	require.NoError(t, err)
	assert.Equal(t, "reports", routes.Home)
}

func TestResolveHomeFallsBackToDefault(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	hidden := mustCreate(t, f.store, &Menu{Domain: "acme", Name: "secret", Path: "/secret", Hidden: true})
	require.NoError(t, f.store.AssignToRole(ctx, "viewer", []string{hidden.ID}))
	f.grantRole(t, "bob", "viewer")

	routes, err := f.resolver.GetUserRoutes(ctx, "bob", "acme")
	require.NoError(t, err)
	assert.Equal(t, "home", routes.Home)
}

func TestResolveIncludesInheritedRoleMenus(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	parentMenu := mustCreate(t, f.store, &Menu{Domain: "acme", Name: "admin-only", Path: "/admin"})
	require.NoError(t, f.store.AssignToRole(ctx, "parent", []string{parentMenu.ID}))

	// child inherits parent; carol only holds child.
	_, err := f.engine.AddGroupingPolicies([][]string{
		{policy.RoleSubject("child"), policy.RoleSubject("parent")},
	})
	require.NoError(t, err)
	f.grantRole(t, "carol", "child")

	routes, err := f.resolver.GetUserRoutes(ctx, "carol", "acme")
	require.NoError(t, err)
	require.Len(t, routes.Routes, 1)
	assert.Equal(t, "admin-only", routes.Routes[0].Name)
}

func TestResolveServesFromCache(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	menu := mustCreate(t, f.store, &Menu{Domain: "acme", Name: "a", Path: "/a"})
	require.NoError(t, f.store.AssignToRole(ctx, "r", []string{menu.ID}))
	f.grantRole(t, "alice", "r")

	first, err := f.resolver.GetUserRoutes(ctx, "alice", "acme")
	require.NoError(t, err)
	require.Len(t, first.Routes, 1)

	// Mutate underlying data; the cached tree still answers.
	require.NoError(t, f.store.AssignToRole(ctx, "r", nil))

	second, err := f.resolver.GetUserRoutes(ctx, "alice", "acme")
	require.NoError(t, err)
	assert.Len(t, second.Routes, 1)

	// After invalidation the fresh state is visible.
	require.NoError(t, f.resolver.cache.InvalidateDomainRoutes(ctx, "acme"))

	third, err := f.resolver.GetUserRoutes(ctx, "alice", "acme")
	require.NoError(t, err)
	assert.Empty(t, third.Routes)
}

func TestResolveOrphanChildPromotedToRoot(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	parent := mustCreate(t, f.store, &Menu{Domain: "acme", Name: "parent", Path: "/p", Status: StatusDisabled})
	child := mustCreate(t, f.store, &Menu{Domain: "acme", ParentID: parent.ID, Name: "child", Path: "/p/c"})

	require.NoError(t, f.store.AssignToRole(ctx, "r", []string{parent.ID, child.ID}))
	f.grantRole(t, "alice", "r")

	// The disabled parent is filtered out; the child surfaces as a root.
	routes, err := f.resolver.GetUserRoutes(ctx, "alice", "acme")
	require.NoError(t, err)
	require.Len(t, routes.Routes, 1)
	assert.Equal(t, "child", routes.Routes[0].Name)
}
