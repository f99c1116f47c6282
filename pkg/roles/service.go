package roles

import (
	"context"
	"fmt"

	"github.com/stackgate/admind/pkg/cache"
	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/hierarchy"
	"github.com/stackgate/admind/pkg/observability"
	"github.com/stackgate/admind/pkg/policy"
)

// Invalidator drops cached data for a domain after a mutation.
// Implemented by the cache package; kept narrow so tests can stub it.
type Invalidator interface {
	InvalidateDomainRoutes(ctx context.Context, domain string) error
}

var _ Invalidator = (*cache.Cache)(nil)

// Service provides role lifecycle operations. Deleting a role purges
// its policy tuples and inheritance edges before the row goes away so
// the policy store never references a dead role.
type Service struct {
	store       *Store
	hierarchy   *hierarchy.Manager
	policies    policy.Store
	invalidator Invalidator
	logger      *observability.Logger
}

// NewService creates a role service.
func NewService(store *Store, h *hierarchy.Manager, policies policy.Store, invalidator Invalidator, logger *observability.Logger) *Service {
	return &Service{
		store:       store,
		hierarchy:   h,
		policies:    policies,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Create validates and inserts a new role in a domain.
func (s *Service) Create(ctx context.Context, domain string, req CreateRoleRequest) (*Role, error) {
	if req.Name == "" {
		return nil, errdefs.Validation("role name is required")
	}
	if req.Status != "" && req.Status != StatusEnabled && req.Status != StatusDisabled {
		return nil, errdefs.Validation("invalid role status %q", req.Status)
	}

	if _, err := s.store.GetByName(ctx, domain, req.Name); err == nil {
		return nil, errdefs.Conflict("role %s already exists in domain %s", req.Name, domain)
	} else if !errdefs.IsNotFound(err) {
		return nil, err
	}

	role := &Role{
		Domain:      domain,
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
	}
	if err := s.store.Create(ctx, role); err != nil {
		return nil, err
	}

	s.invalidate(ctx, domain)
	return role, nil
}

// Get returns a role with its parent role ids attached. The role must
// belong to the caller's domain; an empty domain skips the check.
func (s *Service) Get(ctx context.Context, domain, roleID string) (*Role, error) {
	role, err := s.requireRole(ctx, domain, roleID)
	if err != nil {
		return nil, err
	}
	parents, err := s.hierarchy.GetParents(role.ID)
	if err != nil {
		return nil, err
	}
	role.ParentRoleIDs = parents
	return role, nil
}

// List returns a domain's roles, each with parent ids, using a single
// grouping-relation read for the whole page.
func (s *Service) List(ctx context.Context, domain string) ([]*Role, error) {
	list, err := s.store.List(ctx, domain)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]string, len(list))
	for i, role := range list {
		ids[i] = role.ID
	}
	parents, err := s.hierarchy.GetParentsForAll(ids)
	if err != nil {
		return nil, err
	}
	for _, role := range list {
		role.ParentRoleIDs = parents[role.ID]
	}
	return list, nil
}

// Update applies field changes to a role.
func (s *Service) Update(ctx context.Context, domain, roleID string, req UpdateRoleRequest) (*Role, error) {
	if req.Status != nil && *req.Status != StatusEnabled && *req.Status != StatusDisabled {
		return nil, errdefs.Validation("invalid role status %q", *req.Status)
	}
	if req.Name != nil && *req.Name == "" {
		return nil, errdefs.Validation("role name must not be empty")
	}
	if _, err := s.requireRole(ctx, domain, roleID); err != nil {
		return nil, err
	}

	role, err := s.store.Update(ctx, roleID, req)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, role.Domain)
	return role, nil
}

// Delete removes a role. Policy tuples and inheritance edges are purged
// first; the row delete comes last so a crash mid-way leaves a role row
// whose cleanup can simply be retried.
func (s *Service) Delete(ctx context.Context, domain, roleID string) error {
	role, err := s.requireRole(ctx, domain, roleID)
	if err != nil {
		return err
	}

	subject := policy.RoleSubject(roleID)
	if _, err := s.policies.RemoveFilteredPolicies(0, subject); err != nil {
		return fmt.Errorf("failed to purge permissions of role %s: %w", roleID, err)
	}
	if err := s.hierarchy.CleanInheritance(roleID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, roleID); err != nil {
		return err
	}

	s.invalidate(ctx, role.Domain)
	return nil
}

// AssignToUser adds a user membership edge for a role.
func (s *Service) AssignToUser(ctx context.Context, domain, roleID, userID string) error {
	role, err := s.requireRole(ctx, domain, roleID)
	if err != nil {
		return err
	}

	if _, err := s.policies.AddGroupingPolicies([][]string{
		{policy.UserSubject(userID), policy.RoleSubject(roleID)},
	}); err != nil {
		return fmt.Errorf("failed to assign role %s to user %s: %w", roleID, userID, err)
	}

	s.invalidate(ctx, role.Domain)
	return nil
}

// RevokeFromUser removes a user membership edge.
func (s *Service) RevokeFromUser(ctx context.Context, domain, roleID, userID string) error {
	role, err := s.requireRole(ctx, domain, roleID)
	if err != nil {
		return err
	}

	if _, err := s.policies.RemoveGroupingPolicies([][]string{
		{policy.UserSubject(userID), policy.RoleSubject(roleID)},
	}); err != nil {
		return fmt.Errorf("failed to revoke role %s from user %s: %w", roleID, userID, err)
	}

	s.invalidate(ctx, role.Domain)
	return nil
}

// SetParents validates and replaces a role's inheritance edges.
func (s *Service) SetParents(ctx context.Context, domain, roleID string, parentIDs []string) error {
	role, err := s.requireRole(ctx, domain, roleID)
	if err != nil {
		return err
	}
	for _, parentID := range parentIDs {
		if exists, err := s.store.RoleExists(ctx, parentID); err != nil {
			return err
		} else if !exists {
			return errdefs.NotFound("parent role %s not found", parentID)
		}
	}
	if err := s.hierarchy.ValidateParents(roleID, parentIDs); err != nil {
		return err
	}
	if err := s.hierarchy.SetParents(roleID, parentIDs); err != nil {
		return err
	}

	s.invalidate(ctx, role.Domain)
	return nil
}

// requireRole loads a role and rejects ids owned by another tenant. A
// cross-domain role reads as missing so ids cannot be probed across
// tenants; an empty domain skips the check for internal callers.
func (s *Service) requireRole(ctx context.Context, domain, roleID string) (*Role, error) {
	role, err := s.store.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if domain != "" && role.Domain != domain {
		return nil, errdefs.NotFound("role %s not found", roleID)
	}
	return role, nil
}

// invalidate drops the domain's cached route trees. Failures are logged
// and swallowed; a stale cache entry expires on its own TTL.
func (s *Service) invalidate(ctx context.Context, domain string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateDomainRoutes(ctx, domain); err != nil && s.logger != nil {
		s.logger.WithError(err).WithDomain(domain).Warn("failed to invalidate domain cache")
	}
}
