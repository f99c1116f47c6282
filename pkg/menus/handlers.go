package menus

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/httputil"
	"github.com/stackgate/admind/pkg/observability"
)

// Handlers provides HTTP handlers for menus and route resolution
type Handlers struct {
	service  *Service
	resolver *Resolver
	logger   *observability.Logger
}

// NewHandlers creates menu handlers
func NewHandlers(service *Service, resolver *Resolver, logger *observability.Logger) *Handlers {
	return &Handlers{
		service:  service,
		resolver: resolver,
		logger:   logger,
	}
}

// RegisterRoutes registers all menu routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/menus", h.CreateMenu).Methods("POST")
	router.HandleFunc("/menus", h.ListMenus).Methods("GET")
	router.HandleFunc("/menus/{id}", h.GetMenu).Methods("GET")
	router.HandleFunc("/menus/{id}", h.UpdateMenu).Methods("PUT")
	router.HandleFunc("/menus/{id}", h.DeleteMenu).Methods("DELETE")

	router.HandleFunc("/roles/{id}/menus", h.AssignMenus).Methods("PUT")
	router.HandleFunc("/roles/{id}/menus", h.GetRoleMenus).Methods("GET")

	router.HandleFunc("/user/routes", h.GetUserRoutes).Methods("GET")
}

// CreateMenu creates a menu in the caller's domain
func (h *Handlers) CreateMenu(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}

	var req CreateMenuRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	menu, err := h.service.Create(r.Context(), domain, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, menu)
}

// ListMenus lists the caller's domain menus
func (h *Handlers) ListMenus(w http.ResponseWriter, r *http.Request) {
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
		list = []*Menu{}
	}
	httputil.WriteSuccess(w, list)
}

// GetMenu returns a single menu
func (h *Handlers) GetMenu(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	menuID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	menu, err := h.service.Get(r.Context(), domain, menuID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, menu)
}

// UpdateMenu updates menu fields
func (h *Handlers) UpdateMenu(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	menuID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateMenuRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	menu, err := h.service.Update(r.Context(), domain, menuID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, menu)
}

// DeleteMenu deletes a menu
func (h *Handlers) DeleteMenu(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	menuID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), domain, menuID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AssignMenus replaces a role's menu assignments
func (h *Handlers) AssignMenus(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		MenuIDs []string `json:"menu_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.AssignToRole(r.Context(), domain, roleID, req.MenuIDs); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetRoleMenus returns a role's assigned menu ids
func (h *Handlers) GetRoleMenus(w http.ResponseWriter, r *http.Request) {
	domain, ok := httputil.RequireDomain(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	ids, err := h.service.GetMenusForRole(r.Context(), domain, roleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httputil.WriteSuccess(w, map[string][]string{"menu_ids": ids})
}

// GetUserRoutes returns the caller's resolved route tree
func (h *Handlers) GetUserRoutes(w http.ResponseWriter, r *http.Request) {
	domain := httputil.Domain(r)
	userID := httputil.UserID(r)
	if domain == "" || userID == "" {
		httputil.WriteBadRequest(w, "user identity and tenant domain are required")
		return
	}

	routes, err := h.resolver.GetUserRoutes(r.Context(), userID, domain)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, routes)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && errdefs.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("menu operation failed")
	}
	httputil.WriteError(w, err)
}
