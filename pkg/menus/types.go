package menus

import "time"

// Menu statuses.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// Menu is a navigable frontend route owned by a tenant domain. Menus
// form a tree through ParentID; an empty ParentID marks a root.
type Menu struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	ParentID  string    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Component string    `json:"component,omitempty"`
	Title     string    `json:"title"`
	Icon      string    `json:"icon,omitempty"`
	Order     int       `json:"order"`
	Hidden    bool      `json:"hidden"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RouteMeta is the display metadata attached to a resolved route.
type RouteMeta struct {
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
	Hidden bool   `json:"hidden"`
	Order  int    `json:"order"`
}

// RouteNode is one node of a user's resolved route tree.
type RouteNode struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Path      string       `json:"path"`
	Component string       `json:"component,omitempty"`
	Meta      RouteMeta    `json:"meta"`
	Children  []*RouteNode `json:"children,omitempty"`
}

// UserRoutes is the resolved navigation payload for one user in one
// domain. Home is empty when the user has no visible routes.
type UserRoutes struct {
	Home   string       `json:"home"`
	Routes []*RouteNode `json:"routes"`
}

// CreateMenuRequest is the payload for creating a menu.
type CreateMenuRequest struct {
	ParentID  string `json:"parent_id,omitempty"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Component string `json:"component,omitempty"`
	Title     string `json:"title"`
	Icon      string `json:"icon,omitempty"`
	Order     int    `json:"order"`
	Hidden    bool   `json:"hidden"`
	Status    string `json:"status,omitempty"`
}

// UpdateMenuRequest carries mutable menu fields. Nil means unchanged.
type UpdateMenuRequest struct {
	ParentID  *string `json:"parent_id,omitempty"`
	Name      *string `json:"name,omitempty"`
	Path      *string `json:"path,omitempty"`
	Component *string `json:"component,omitempty"`
	Title     *string `json:"title,omitempty"`
	Icon      *string `json:"icon,omitempty"`
	Order     *int    `json:"order,omitempty"`
	Hidden    *bool   `json:"hidden,omitempty"`
	Status    *string `json:"status,omitempty"`
}
