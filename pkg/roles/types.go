package roles

import "time"

// Role statuses.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// Role is a named permission bundle scoped to a tenant domain.
// (domain, name) is unique. ParentRoleIDs is derived from the policy
// grouping relation, not stored on the row.
type Role struct {
	ID            string    `json:"id"`
	Domain        string    `json:"domain"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	ParentRoleIDs []string  `json:"parent_role_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateRoleRequest is the payload for creating a role.
type CreateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// UpdateRoleRequest carries the mutable role fields. Nil means unchanged.
type UpdateRoleRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}
