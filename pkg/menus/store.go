package menus

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackgate/admind/pkg/errdefs"
)

// Store handles menu rows and role-menu assignments.
type Store struct {
	db *sql.DB
}

// NewStore creates a menu store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const menuColumns = `id, domain, parent_id, name, path, component, title, icon, sort_order, hidden, status, created_at, updated_at`

func scanMenu(scanner interface{ Scan(...interface{}) error }) (*Menu, error) {
	var m Menu
	var parentID sql.NullString
	err := scanner.Scan(
		&m.ID,
		&m.Domain,
		&parentID,
		&m.Name,
		&m.Path,
		&m.Component,
		&m.Title,
		&m.Icon,
		&m.Order,
		&m.Hidden,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		m.ParentID = parentID.String
	}
	return &m, nil
}

// Create inserts a menu row.
func (s *Store) Create(ctx context.Context, menu *Menu) error {
	if menu.ID == "" {
		menu.ID = uuid.New().String()
	}
	if menu.Status == "" {
		menu.Status = StatusEnabled
	}

	query := `
		INSERT INTO menus (id, domain, parent_id, name, path, component, title, icon, sort_order, hidden, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		menu.ID,
		menu.Domain,
		nullable(menu.ParentID),
		menu.Name,
		menu.Path,
		menu.Component,
		menu.Title,
		menu.Icon,
		menu.Order,
		menu.Hidden,
		menu.Status,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create menu: %w", err)
	}

	menu.CreatedAt = now
	menu.UpdatedAt = now
	return nil
}

// Get retrieves a menu by id.
func (s *Store) Get(ctx context.Context, menuID string) (*Menu, error) {
	query := fmt.Sprintf(`SELECT %s FROM menus WHERE id = $1`, menuColumns)

	menu, err := scanMenu(s.db.QueryRowContext(ctx, query, menuID))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("menu %s not found", menuID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get menu: %w", err)
	}
	return menu, nil
}

// List returns all menus of a domain ordered for tree assembly.
func (s *Store) List(ctx context.Context, domain string) ([]*Menu, error) {
	query := fmt.Sprintf(`SELECT %s FROM menus WHERE domain = $1 ORDER BY sort_order, name`, menuColumns)
	return s.queryMenus(ctx, query, domain)
}

// Update applies non-nil fields to a menu row.
func (s *Store) Update(ctx context.Context, menuID string, req UpdateMenuRequest) (*Menu, error) {
	menu, err := s.Get(ctx, menuID)
	if err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		menu.ParentID = *req.ParentID
	}
	if req.Name != nil {
		menu.Name = *req.Name
	}
	if req.Path != nil {
		menu.Path = *req.Path
	}
	if req.Component != nil {
		menu.Component = *req.Component
	}
	if req.Title != nil {
		menu.Title = *req.Title
	}
	if req.Icon != nil {
		menu.Icon = *req.Icon
	}
	if req.Order != nil {
		menu.Order = *req.Order
	}
	if req.Hidden != nil {
		menu.Hidden = *req.Hidden
	}
	if req.Status != nil {
		menu.Status = *req.Status
	}

	query := `
		UPDATE menus
		SET parent_id = $1, name = $2, path = $3, component = $4, title = $5,
		    icon = $6, sort_order = $7, hidden = $8, status = $9, updated_at = $10
		WHERE id = $11
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query,
		nullable(menu.ParentID),
		menu.Name,
		menu.Path,
		menu.Component,
		menu.Title,
		menu.Icon,
		menu.Order,
		menu.Hidden,
		menu.Status,
		now,
		menuID,
	); err != nil {
		return nil, fmt.Errorf("failed to update menu: %w", err)
	}

	menu.UpdatedAt = now
	return menu, nil
}

// Delete removes a menu row and its role assignments.
func (s *Store) Delete(ctx context.Context, menuID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_menus WHERE menu_id = $1`, menuID); err != nil {
		return fmt.Errorf("failed to delete menu assignments: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM menus WHERE id = $1`, menuID)
	if err != nil {
		return fmt.Errorf("failed to delete menu: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("menu %s not found", menuID)
	}

	return tx.Commit()
}

// AssignToRole replaces a role's menu set.
func (s *Store) AssignToRole(ctx context.Context, roleID string, menuIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_menus WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear menu assignments: %w", err)
	}

	for _, menuID := range menuIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_menus (role_id, menu_id) VALUES ($1, $2)`,
			roleID, menuID,
		); err != nil {
			return fmt.Errorf("failed to assign menu %s to role %s: %w", menuID, roleID, err)
		}
	}

	return tx.Commit()
}

// GetMenuIDsForRole returns the menu ids assigned to one role.
func (s *Store) GetMenuIDsForRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT menu_id FROM role_menus WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get menu assignments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan menu id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetEnabledForRoles returns the distinct enabled menus of a domain that
// any of the given roles is assigned, ordered for tree assembly. One
// query covers the whole role set.
func (s *Store) GetEnabledForRoles(ctx context.Context, domain string, roleIDs []string) ([]*Menu, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := make([]interface{}, 0, len(roleIDs)+2)
	args = append(args, domain, StatusEnabled)
	for i, id := range roleIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT %s
		FROM menus m
		JOIN role_menus rm ON rm.menu_id = m.id
		WHERE m.domain = $1 AND m.status = $2 AND rm.role_id IN (%s)
		ORDER BY m.sort_order, m.name
	`, prefixColumns("m"), strings.Join(placeholders, ", "))

	return s.queryMenus(ctx, query, args...)
}

func (s *Store) queryMenus(ctx context.Context, query string, args ...interface{}) ([]*Menu, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query menus: %w", err)
	}
	defer rows.Close()

	var menus []*Menu
	for rows.Next() {
		menu, err := scanMenu(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		menus = append(menus, menu)
	}
	return menus, rows.Err()
}

func prefixColumns(alias string) string {
	cols := strings.Split(menuColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
