package menus

import (
	"context"

	"github.com/stackgate/admind/pkg/cache"
	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/observability"
)

// Invalidator drops cached route trees for a domain after a mutation.
type Invalidator interface {
	InvalidateDomainRoutes(ctx context.Context, domain string) error
}

var _ Invalidator = (*cache.Cache)(nil)

// RoleLookup resolves the tenant domain owning a role, for assignment
// validation. Implemented by the roles store.
type RoleLookup interface {
	RoleDomain(ctx context.Context, roleID string) (string, error)
}

// Service provides menu lifecycle and role assignment. Every mutation
// invalidates the domain's cached route trees.
type Service struct {
	store       *Store
	roles       RoleLookup
	invalidator Invalidator
	logger      *observability.Logger
}

// NewService creates a menu service.
func NewService(store *Store, roles RoleLookup, invalidator Invalidator, logger *observability.Logger) *Service {
	return &Service{
		store:       store,
		roles:       roles,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Create validates and inserts a menu.
func (s *Service) Create(ctx context.Context, domain string, req CreateMenuRequest) (*Menu, error) {
	if req.Name == "" {
		return nil, errdefs.Validation("menu name is required")
	}
	if req.Path == "" {
		return nil, errdefs.Validation("menu path is required")
	}
	if req.Status != "" && req.Status != StatusEnabled && req.Status != StatusDisabled {
		return nil, errdefs.Validation("invalid menu status %q", req.Status)
	}
	if req.ParentID != "" {
		parent, err := s.store.Get(ctx, req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.Domain != domain {
			return nil, errdefs.Validation("parent menu %s belongs to another domain", req.ParentID)
		}
	}

	menu := &Menu{
		Domain:    domain,
		ParentID:  req.ParentID,
		Name:      req.Name,
		Path:      req.Path,
		Component: req.Component,
		Title:     req.Title,
		Icon:      req.Icon,
		Order:     req.Order,
		Hidden:    req.Hidden,
		Status:    req.Status,
	}
	if err := s.store.Create(ctx, menu); err != nil {
		return nil, err
	}

	s.invalidate(ctx, domain)
	return menu, nil
}

// Get returns a menu by id. The menu must belong to the caller's
// domain; an empty domain skips the check.
func (s *Service) Get(ctx context.Context, domain, menuID string) (*Menu, error) {
	return s.requireMenu(ctx, domain, menuID)
}

// List returns a domain's menus.
func (s *Service) List(ctx context.Context, domain string) ([]*Menu, error) {
	return s.store.List(ctx, domain)
}

// Update applies field changes to a menu.
func (s *Service) Update(ctx context.Context, domain, menuID string, req UpdateMenuRequest) (*Menu, error) {
	if req.Status != nil && *req.Status != StatusEnabled && *req.Status != StatusDisabled {
		return nil, errdefs.Validation("invalid menu status %q", *req.Status)
	}

	if _, err := s.requireMenu(ctx, domain, menuID); err != nil {
		return nil, err
	}

	menu, err := s.store.Update(ctx, menuID, req)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, menu.Domain)
	return menu, nil
}

// Delete removes a menu and its role assignments.
func (s *Service) Delete(ctx context.Context, domain, menuID string) error {
	menu, err := s.requireMenu(ctx, domain, menuID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, menuID); err != nil {
		return err
	}

	s.invalidate(ctx, menu.Domain)
	return nil
}

// AssignToRole replaces a role's menu set. All menus must exist and be
// in the given domain.
func (s *Service) AssignToRole(ctx context.Context, domain, roleID string, menuIDs []string) error {
	if err := s.requireRole(ctx, domain, roleID); err != nil {
		return err
	}

	for _, menuID := range menuIDs {
		menu, err := s.store.Get(ctx, menuID)
		if err != nil {
			return err
		}
		if menu.Domain != domain {
			return errdefs.Validation("menu %s belongs to another domain", menuID)
		}
	}

	if err := s.store.AssignToRole(ctx, roleID, menuIDs); err != nil {
		return err
	}

	s.invalidate(ctx, domain)
	return nil
}

// GetMenusForRole returns a role's assigned menu ids.
func (s *Service) GetMenusForRole(ctx context.Context, domain, roleID string) ([]string, error) {
	if err := s.requireRole(ctx, domain, roleID); err != nil {
		return nil, err
	}
	return s.store.GetMenuIDsForRole(ctx, roleID)
}

// requireMenu loads a menu and rejects ids owned by another tenant. A
// cross-domain menu reads as missing so ids cannot be probed across
// tenants; an empty domain skips the check for internal callers.
func (s *Service) requireMenu(ctx context.Context, domain, menuID string) (*Menu, error) {
	menu, err := s.store.Get(ctx, menuID)
	if err != nil {
		return nil, err
	}
	if domain != "" && menu.Domain != domain {
		return nil, errdefs.NotFound("menu %s not found", menuID)
	}
	return menu, nil
}

// requireRole rejects roles owned by another tenant, same contract as
// requireMenu.
func (s *Service) requireRole(ctx context.Context, domain, roleID string) error {
	roleDomain, err := s.roles.RoleDomain(ctx, roleID)
	if err != nil {
		return err
	}
	if domain != "" && roleDomain != domain {
		return errdefs.NotFound("role %s not found", roleID)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, domain string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateDomainRoutes(ctx, domain); err != nil && s.logger != nil {
		s.logger.WithError(err).WithDomain(domain).Warn("failed to invalidate domain cache")
	}
}
