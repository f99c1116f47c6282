package menus

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgate/admind/pkg/errdefs"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE menus (
			id TEXT PRIMARY KEY,
			domain TEXT NOT NULL,
			parent_id TEXT,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			component TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0,
			hidden BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'enabled',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE role_menus (
			role_id TEXT NOT NULL,
			menu_id TEXT NOT NULL,
			PRIMARY KEY (role_id, menu_id)
		);
	`)
	require.NoError(t, err)
	return db
}

func mustCreate(t *testing.T, store *Store, menu *Menu) *Menu {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), menu))
	return menu
}

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	menu := mustCreate(t, store, &Menu{
		Domain: "acme",
		Name:   "dashboard",
		Path:   "/dashboard",
		Title:  "Dashboard",
		Order:  1,
	})
	assert.NotEmpty(t, menu.ID)
	assert.Equal(t, StatusEnabled, menu.Status)

	got, err := store.Get(ctx, menu.ID)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", got.Name)
	assert.Empty(t, got.ParentID)
}

func TestStoreGetMissing(t *testing.T) {
	store := NewStore(newTestDB(t))

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestStoreParentRoundTrip(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	parent := mustCreate(t, store, &Menu{Domain: "acme", Name: "system", Path: "/system"})
	child := mustCreate(t, store, &Menu{Domain: "acme", ParentID: parent.ID, Name: "users", Path: "/system/users"})

	got, err := store.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, got.ParentID)
}

func TestStoreListOrdersBySortOrder(t *testing.T) {
	store := NewStore(newTestDB(t))

	mustCreate(t, store, &Menu{Domain: "acme", Name: "second", Path: "/b", Order: 2})
	mustCreate(t, store, &Menu{Domain: "acme", Name: "first", Path: "/a", Order: 1})
	mustCreate(t, store, &Menu{Domain: "globex", Name: "other", Path: "/c", Order: 0})

	list, err := store.List(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, "second", list[1].Name)
}

func TestStoreAssignToRoleReplaces(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	m1 := mustCreate(t, store, &Menu{Domain: "acme", Name: "a", Path: "/a"})
	m2 := mustCreate(t, store, &Menu{Domain: "acme", Name: "b", Path: "/b"})

	require.NoError(t, store.AssignToRole(ctx, "r1", []string{m1.ID, m2.ID}))

	ids, err := store.GetMenuIDsForRole(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m1.ID, m2.ID}, ids)

	require.NoError(t, store.AssignToRole(ctx, "r1", []string{m2.ID}))

	ids, err = store.GetMenuIDsForRole(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{m2.ID}, ids)
}

func TestStoreGetEnabledForRoles(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	enabled := mustCreate(t, store, &Menu{Domain: "acme", Name: "a", Path: "/a", Order: 1})
	shared := mustCreate(t, store, &Menu{Domain: "acme", Name: "b", Path: "/b", Order: 2})
	disabled := mustCreate(t, store, &Menu{Domain: "acme", Name: "c", Path: "/c", Status: StatusDisabled})
	foreign := mustCreate(t, store, &Menu{Domain: "globex", Name: "d", Path: "/d"})

	require.NoError(t, store.AssignToRole(ctx, "r1", []string{enabled.ID, shared.ID, disabled.ID, foreign.ID}))
	require.NoError(t, store.AssignToRole(ctx, "r2", []string{shared.ID}))

	// Shared menu appears once despite two assigning roles; disabled and
	// cross-domain menus are filtered out.
	menus, err := store.GetEnabledForRoles(ctx, "acme", []string{"r1", "r2"})
	require.NoError(t, err)
	require.Len(t, menus, 2)
	assert.Equal(t, "a", menus[0].Name)
	assert.Equal(t, "b", menus[1].Name)
}

func TestStoreGetEnabledForRolesEmpty(t *testing.T) {
	store := NewStore(newTestDB(t))

	menus, err := store.GetEnabledForRoles(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Empty(t, menus)
}

func TestStoreDeleteRemovesAssignments(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	menu := mustCreate(t, store, &Menu{Domain: "acme", Name: "a", Path: "/a"})
	require.NoError(t, store.AssignToRole(ctx, "r1", []string{menu.ID}))

	require.NoError(t, store.Delete(ctx, menu.ID))

	ids, err := store.GetMenuIDsForRole(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	err = store.Delete(ctx, menu.ID)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	menu := mustCreate(t, store, &Menu{Domain: "acme", Name: "a", Path: "/a"})

	hidden := true
	title := "Hidden A"
	updated, err := store.Update(ctx, menu.ID, UpdateMenuRequest{Hidden: &hidden, Title: &title})
	require.NoError(t, err)
	assert.True(t, updated.Hidden)
	assert.Equal(t, "Hidden A", updated.Title)
	assert.Equal(t, "/a", updated.Path)
}
