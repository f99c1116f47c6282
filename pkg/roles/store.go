package roles

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/stackgate/admind/pkg/errdefs"
)

// Store handles role row persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a role store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a role. The id is assigned here.
func (s *Store) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if role.Status == "" {
		role.Status = StatusEnabled
	}

	query := `
		INSERT INTO roles (id, domain, name, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		role.ID,
		role.Domain,
		role.Name,
		role.Description,
		role.Status,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errdefs.Conflict("role %s already exists in domain %s", role.Name, role.Domain)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// Get retrieves a role by id.
func (s *Store) Get(ctx context.Context, roleID string) (*Role, error) {
	query := `
		SELECT id, domain, name, description, status, created_at, updated_at
		FROM roles
		WHERE id = $1
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(
		&role.ID,
		&role.Domain,
		&role.Name,
		&role.Description,
		&role.Status,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("role %s not found", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// GetByName retrieves a role by (domain, name).
func (s *Store) GetByName(ctx context.Context, domain, name string) (*Role, error) {
	query := `
		SELECT id, domain, name, description, status, created_at, updated_at
		FROM roles
		WHERE domain = $1 AND name = $2
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, domain, name).Scan(
		&role.ID,
		&role.Domain,
		&role.Name,
		&role.Description,
		&role.Status,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("role %s not found in domain %s", name, domain)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return &role, nil
}

// List returns all roles in a domain ordered by name.
func (s *Store) List(ctx context.Context, domain string) ([]*Role, error) {
	query := `
		SELECT id, domain, name, description, status, created_at, updated_at
		FROM roles
		WHERE domain = $1
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(
			&role.ID,
			&role.Domain,
			&role.Name,
			&role.Description,
			&role.Status,
			&role.CreatedAt,
			&role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

// Update applies non-nil fields to a role row.
func (s *Store) Update(ctx context.Context, roleID string, req UpdateRoleRequest) (*Role, error) {
	role, err := s.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		role.Name = *req.Name
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.Status != nil {
		role.Status = *req.Status
	}

	query := `
		UPDATE roles
		SET name = $1, description = $2, status = $3, updated_at = $4
		WHERE id = $5
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, role.Name, role.Description, role.Status, now, roleID); err != nil {
		if isUniqueViolation(err) {
			return nil, errdefs.Conflict("role %s already exists in domain %s", role.Name, role.Domain)
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	role.UpdatedAt = now
	return role, nil
}

// Delete removes a role row.
func (s *Store) Delete(ctx context.Context, roleID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("role %s not found", roleID)
	}
	return nil
}

// RoleDomain returns the tenant domain owning a role. Satisfies the
// permissions and menus services' RoleDirectory.
func (s *Store) RoleDomain(ctx context.Context, roleID string) (string, error) {
	var domain string
	err := s.db.QueryRowContext(ctx, `SELECT domain FROM roles WHERE id = $1`, roleID).Scan(&domain)
	if err == sql.ErrNoRows {
		return "", errdefs.NotFound("role %s not found", roleID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve role domain: %w", err)
	}
	return domain, nil
}

// RoleExists reports whether a role row exists.
func (s *Store) RoleExists(ctx context.Context, roleID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role existence: %w", err)
	}
	return exists, nil
}

// isUniqueViolation detects a postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
