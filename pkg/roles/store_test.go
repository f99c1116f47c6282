package roles

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
		CREATE TABLE roles (
			id TEXT PRIMARY KEY,
			domain TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'enabled',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (domain, name)
		)
	`)
	require.NoError(t, err)
	return db
}

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	role := &Role{Domain: "acme", Name: "admin", Description: "full access"}
	require.NoError(t, store.Create(ctx, role))
	assert.NotEmpty(t, role.ID)
	assert.Equal(t, StatusEnabled, role.Status)

	got, err := store.Get(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Name)
	assert.Equal(t, "acme", got.Domain)

	got, err = store.GetByName(ctx, "acme", "admin")
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
}

func TestStoreGetMissing(t *testing.T) {
	store := NewStore(newTestDB(t))

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestStoreDuplicateNameRejected(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Role{Domain: "acme", Name: "admin"}))
	err := store.Create(ctx, &Role{Domain: "acme", Name: "admin"})
	require.Error(t, err)

	// Same name in another domain is fine.
	require.NoError(t, store.Create(ctx, &Role{Domain: "globex", Name: "admin"}))
}

func TestStoreListScopedByDomain(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Role{Domain: "acme", Name: "b"}))
	require.NoError(t, store.Create(ctx, &Role{Domain: "acme", Name: "a"}))
	require.NoError(t, store.Create(ctx, &Role{Domain: "globex", Name: "c"}))

	list, err := store.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	role := &Role{Domain: "acme", Name: "admin"}
	require.NoError(t, store.Create(ctx, role))

	newDesc := "updated"
	newStatus := StatusDisabled
	updated, err := store.Update(ctx, role.ID, UpdateRoleRequest{
		Description: &newDesc,
		Status:      &newStatus,
	})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Description)
	assert.Equal(t, StatusDisabled, updated.Status)
	assert.Equal(t, "admin", updated.Name)
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	role := &Role{Domain: "acme", Name: "admin"}
	require.NoError(t, store.Create(ctx, role))
	require.NoError(t, store.Delete(ctx, role.ID))

	err := store.Delete(ctx, role.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestStoreRoleExists(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	role := &Role{Domain: "acme", Name: "admin"}
	require.NoError(t, store.Create(ctx, role))

	exists, err := store.RoleExists(ctx, role.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.RoleExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreRoleDomain(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	role := &Role{Domain: "acme", Name: "admin"}
	require.NoError(t, store.Create(ctx, role))

	domain, err := store.RoleDomain(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", domain)

	_, err = store.RoleDomain(ctx, "nope")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}
