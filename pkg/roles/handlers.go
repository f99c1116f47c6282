package roles

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/httputil"
	"github.com/stackgate/admind/pkg/observability"
	"github.com/stackgate/admind/pkg/permissions"
)

// Handlers provides HTTP handlers for role management
type Handlers struct {
	service     *Service
	permissions *permissions.Service
	logger      *observability.Logger
}

// NewHandlers creates role handlers
func NewHandlers(service *Service, perms *permissions.Service, logger *observability.Logger) *Handlers {
	return &Handlers{
		service:     service,
		permissions: perms,
		logger:      logger,
	}
}

// RegisterRoutes registers all role routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/roles/{id}", h.DeleteRole).Methods("DELETE")

	router.HandleFunc("/roles/{id}/parents", h.SetParents).Methods("PUT")

	router.HandleFunc("/roles/{id}/permissions", h.SavePermissions).Methods("PUT")
	router.HandleFunc("/roles/{id}/permissions", h.GetPermissions).Methods("GET")

	router.HandleFunc("/roles/{id}/users/{user_id}", h.AssignToUser).Methods("POST")
	router.HandleFunc("/roles/{id}/users/{user_id}", h.RevokeFromUser).Methods("DELETE")
}

// CreateRole creates a role in the caller's domain
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}

	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.service.Create(r.Context(), domain, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// ListRoles lists the caller's domain roles with parent ids
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), domain)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*Role{}
	}
	httputil.WriteSuccess(w, list)
}

// GetRole returns a single role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.service.Get(r.Context(), domain, roleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole updates role fields
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.service.Update(r.Context(), domain, roleID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a role and purges its policy state
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), domain, roleID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// SetParents replaces a role's parent set
func (h *Handlers) SetParents(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		ParentRoleIDs []string `json:"parent_role_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.SetParents(r.Context(), domain, roleID, req.ParentRoleIDs); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// SavePermissions reconciles the role's direct permissions
func (h *Handlers) SavePermissions(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Permissions   []permissions.Permission `json:"permissions"`
		ParentRoleIDs *[]string                `json:"parent_role_ids,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.permissions.SavePermissions(r.Context(), permissions.SaveRequest{
		RoleID:        roleID,
		Domain:        domain,
		Permissions:   req.Permissions,
		ParentRoleIDs: req.ParentRoleIDs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// GetPermissions returns direct permissions, or effective permissions
// when ?effective=true
func (h *Handlers) GetPermissions(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	effective, err := httputil.ParseQueryBool(r, "effective", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var perms []permissions.Permission
	if effective {
		perms, err = h.permissions.GetEffectivePermissions(r.Context(), domain, roleID)
	} else {
		perms, err = h.permissions.GetDirectPermissions(r.Context(), domain, roleID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// AssignToUser grants a role to a user
func (h *Handlers) AssignToUser(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.AssignToUser(r.Context(), domain, roleID, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RevokeFromUser revokes a role from a user
func (h *Handlers) RevokeFromUser(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.RevokeFromUser(r.Context(), domain, roleID, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && errdefs.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("role operation failed")
	}
	httputil.WriteError(w, err)
}
