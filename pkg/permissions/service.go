package permissions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/hierarchy"
	"github.com/stackgate/admind/pkg/observability"
	"github.com/stackgate/admind/pkg/policy"
)

// Permission is a single grant on a resource.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Key is the identity of a permission for diffing purposes.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

func (p Permission) rule(subject string) []string {
	return []string{subject, p.Resource, p.Action, policy.EffectAllow}
}

// Result reports what a save actually changed.
type Result struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

// SaveRequest is the desired end state for one role's direct permissions.
type SaveRequest struct {
	RoleID string
	// Domain scopes the call to the caller's tenant; a role owned by
	// another domain reads as missing. Empty skips the check (internal
	// callers).
	Domain      string
	Permissions []Permission
	// ParentRoleIDs, when non-nil, atomically replaces the role's
	// inheritance edges before permissions are diffed. Nil leaves
	// the hierarchy untouched.
	ParentRoleIDs *[]string
}

// RoleDirectory resolves the tenant domain owning a role. Implemented
// by the roles store; an interface here keeps the dependency pointing
// one way.
type RoleDirectory interface {
	RoleDomain(ctx context.Context, roleID string) (string, error)
}

// Invalidator drops cached route trees for a domain. Inheritance
// changes alter which roles a user implicitly holds, so cached trees
// must go.
type Invalidator interface {
	InvalidateDomainRoutes(ctx context.Context, domain string) error
}

// Service reconciles a role's direct permission set against a desired
// state with a remove-then-add diff and best-effort rollback.
type Service struct {
	store       policy.Store
	hierarchy   *hierarchy.Manager
	roles       RoleDirectory
	invalidator Invalidator
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewService creates a permission assignment service.
func NewService(store policy.Store, h *hierarchy.Manager, roles RoleDirectory, invalidator Invalidator, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:       store,
		hierarchy:   h,
		roles:       roles,
		invalidator: invalidator,
		logger:      logger,
		metrics:     metrics,
	}
}

// SavePermissions makes the role's direct permissions equal the desired
// set. Permissions already reachable through inheritance may not be
// granted directly. Removals happen before additions; if an addition
// fails, the removed tuples are re-added so the role is left in its
// prior state. The call is idempotent.
func (s *Service) SavePermissions(ctx context.Context, req SaveRequest) (*Result, error) {
	roleDomain, err := s.requireRole(ctx, req.Domain, req.RoleID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			s.observe("not_found")
		} else {
			s.observe("error")
		}
		return nil, err
	}

	if req.ParentRoleIDs != nil {
		if err := s.hierarchy.ValidateParents(req.RoleID, *req.ParentRoleIDs); err != nil {
			s.observe("rejected")
			return nil, err
		}
		if err := s.hierarchy.SetParents(req.RoleID, *req.ParentRoleIDs); err != nil {
			s.observe("error")
			return nil, err
		}
		// The edges are live even if the permission diff below is
		// rejected, so cached route trees must go now.
		s.invalidate(ctx, roleDomain)
	}

	subject := policy.RoleSubject(req.RoleID)

	direct, err := s.store.GetPermissionsForSubject(subject)
	if err != nil {
		s.observe("error")
		return nil, err
	}
	implicit, err := s.store.GetImplicitPermissionsForSubject(subject)
	if err != nil {
		s.observe("error")
		return nil, err
	}

	directByKey := rulesByKey(direct)
	inheritedOnly := make(map[string]bool)
	for key := range rulesByKey(implicit) {
		if _, ok := directByKey[key]; !ok {
			inheritedOnly[key] = true
		}
	}

	desiredByKey := make(map[string]Permission, len(req.Permissions))
	var shadowed []string
	for _, perm := range req.Permissions {
		desiredByKey[perm.Key()] = perm
		if inheritedOnly[perm.Key()] {
			shadowed = append(shadowed, perm.Key())
		}
	}
	if len(shadowed) > 0 {
		sort.Strings(shadowed)
		s.observe("rejected")
		return nil, errdefs.Validation("permissions already inherited from parent roles: %s", strings.Join(shadowed, ", "))
	}

	var toRemove [][]string
	for key, rule := range directByKey {
		if _, ok := desiredByKey[key]; !ok {
			toRemove = append(toRemove, rule)
		}
	}
	var toAdd [][]string
	for key, perm := range desiredByKey {
		if _, ok := directByKey[key]; !ok {
			toAdd = append(toAdd, perm.rule(subject))
		}
	}

	if len(toRemove) > 0 {
		if _, err := s.store.RemovePolicies(toRemove); err != nil {
			// Nothing has been added yet; the stored state is intact.
			s.observe("error")
			return nil, fmt.Errorf("failed to remove stale permissions for role %s: %w", req.RoleID, err)
		}
	}

	if len(toAdd) > 0 {
		if _, err := s.store.AddPolicies(toAdd); err != nil {
			return nil, s.rollback(req.RoleID, toRemove, err)
		}
	}

	s.observe("ok")
	return &Result{
		Added:   len(toAdd),
		Removed: len(toRemove),
		Total:   len(req.Permissions),
	}, nil
}

// rollback re-adds tuples that were removed before a failed addition.
// If the compensation itself fails the role has lost permissions, which
// is surfaced as a distinct error so operators can repair by hand.
func (s *Service) rollback(roleID string, removed [][]string, addErr error) error {
	if len(removed) == 0 {
		s.observe("error")
		return fmt.Errorf("failed to add permissions for role %s: %w", roleID, addErr)
	}

	if _, err := s.store.AddPolicies(removed); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"role_id":        roleID,
				"dropped_tuples": removed,
			}).Error("permission rollback failed; role has lost permissions")
		}
		s.observeRollback("failed")
		s.observe("error")
		return errdefs.RollbackFailed(
			fmt.Sprintf("failed to restore %d removed permissions for role %s after a failed add", len(removed), roleID),
			addErr,
		)
	}

	s.observeRollback("ok")
	s.observe("error")
	return fmt.Errorf("failed to add permissions for role %s (removals rolled back): %w", roleID, addErr)
}

// GetDirectPermissions returns the permissions granted to the role
// itself, excluding anything inherited.
func (s *Service) GetDirectPermissions(ctx context.Context, domain, roleID string) ([]Permission, error) {
	if _, err := s.requireRole(ctx, domain, roleID); err != nil {
		return nil, err
	}
	rules, err := s.store.GetPermissionsForSubject(policy.RoleSubject(roleID))
	if err != nil {
		return nil, err
	}
	return permissionsFromRules(rules), nil
}

// GetEffectivePermissions returns direct plus inherited permissions.
func (s *Service) GetEffectivePermissions(ctx context.Context, domain, roleID string) ([]Permission, error) {
	if _, err := s.requireRole(ctx, domain, roleID); err != nil {
		return nil, err
	}
	rules, err := s.store.GetImplicitPermissionsForSubject(policy.RoleSubject(roleID))
	if err != nil {
		return nil, err
	}
	return permissionsFromRules(rules), nil
}

// requireRole resolves the role's owning domain and rejects roles held
// by other tenants. A cross-domain role reads as missing so ids cannot
// be probed across tenants.
func (s *Service) requireRole(ctx context.Context, domain, roleID string) (string, error) {
	roleDomain, err := s.roles.RoleDomain(ctx, roleID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to check role %s: %w", roleID, err)
	}
	if domain != "" && roleDomain != domain {
		return "", errdefs.NotFound("role %s not found", roleID)
	}
	return roleDomain, nil
}

func (s *Service) invalidate(ctx context.Context, domain string) {
	if s.invalidator == nil || domain == "" {
		return
	}
	if err := s.invalidator.InvalidateDomainRoutes(ctx, domain); err != nil && s.logger != nil {
		s.logger.WithError(err).WithDomain(domain).Warn("failed to invalidate cached routes after hierarchy change")
	}
}

func permissionsFromRules(rules [][]string) []Permission {
	perms := make([]Permission, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		p := Permission{Resource: rule[1], Action: rule[2]}
		if !seen[p.Key()] {
			seen[p.Key()] = true
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key() < perms[j].Key() })
	return perms
}

// rulesByKey indexes permission rules by resource:action.
func rulesByKey(rules [][]string) map[string][]string {
	byKey := make(map[string][]string, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		byKey[rule[1]+":"+rule[2]] = rule
	}
	return byKey
}

func (s *Service) observe(status string) {
	if s.metrics != nil {
		s.metrics.PermissionSavesTotal.WithLabelValues(status).Inc()
	}
}

func (s *Service) observeRollback(outcome string) {
	if s.metrics != nil {
		s.metrics.PolicyRollbacksTotal.WithLabelValues(outcome).Inc()
	}
}
