package hierarchy

import (
	"fmt"

	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/observability"
	"github.com/stackgate/admind/pkg/policy"
)

// Manager maintains role-to-role inheritance edges in the policy
// grouping relation. A role inherits the permissions of its parents,
// transitively. The graph must stay acyclic; diamonds are fine.
type Manager struct {
	store   policy.Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewManager creates a hierarchy manager.
func NewManager(store policy.Store, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// SetParents replaces a role's outbound inheritance edges with the given
// parent set. An empty parent set unlinks the role. Cycle checking is
// the caller's responsibility; compose with CheckCircularInheritance
// before mutating.
func (m *Manager) SetParents(roleID string, parentIDs []string) error {
	child := policy.RoleSubject(roleID)

	if _, err := m.store.RemoveFilteredGroupingPolicy(0, child); err != nil {
		return fmt.Errorf("failed to clear parents of role %s: %w", roleID, err)
	}

	if len(parentIDs) == 0 {
		return nil
	}

	edges := make([][]string, 0, len(parentIDs))
	for _, parentID := range parentIDs {
		edges = append(edges, []string{child, policy.RoleSubject(parentID)})
	}
	if _, err := m.store.AddGroupingPolicies(edges); err != nil {
		return fmt.Errorf("failed to set parents of role %s: %w", roleID, err)
	}
	return nil
}

// CheckCircularInheritance reports whether linking roleID under the
// given parents would create a cycle. A role that names itself as a
// parent is always circular. Otherwise each candidate parent's ancestor
// chain is walked depth-first; finding roleID anywhere in it means the
// new edge would close a loop. A shared ancestor reached over two
// distinct paths is not a cycle.
func (m *Manager) CheckCircularInheritance(roleID string, parentIDs []string) (bool, error) {
	for _, parentID := range parentIDs {
		if parentID == roleID {
			m.observe("circular")
			return true, nil
		}
	}

	target := policy.RoleSubject(roleID)
	visited := make(map[string]bool)

	var visit func(subject string) (bool, error)
	visit = func(subject string) (bool, error) {
		if subject == target {
			return true, nil
		}
		if visited[subject] {
			return false, nil
		}
		visited[subject] = true

		parents, err := m.store.GetRolesForSubject(subject)
		if err != nil {
			return false, fmt.Errorf("failed to walk ancestors of %s: %w", subject, err)
		}
		for _, parent := range parents {
			circular, err := visit(parent)
			if err != nil || circular {
				return circular, err
			}
		}
		return false, nil
	}

	for _, parentID := range parentIDs {
		circular, err := visit(policy.RoleSubject(parentID))
		if err != nil {
			return false, err
		}
		if circular {
			m.observe("circular")
			return true, nil
		}
	}

	m.observe("ok")
	return false, nil
}

// ValidateParents runs the cycle check and converts a positive result
// into a validation error naming the role.
func (m *Manager) ValidateParents(roleID string, parentIDs []string) error {
	circular, err := m.CheckCircularInheritance(roleID, parentIDs)
	if err != nil {
		return err
	}
	if circular {
		return errdefs.Validation("circular inheritance detected for role %s", roleID)
	}
	return nil
}

// GetParents returns a role's direct parent role ids.
func (m *Manager) GetParents(roleID string) ([]string, error) {
	subjects, err := m.store.GetRolesForSubject(policy.RoleSubject(roleID))
	if err != nil {
		return nil, err
	}
	return roleIDs(subjects), nil
}

// GetParentsForAll returns the direct parent role ids for every
// requested role in one pass. The full grouping relation is fetched
// once and reduced in memory, so enriching a role listing costs a
// single store read regardless of list size.
func (m *Manager) GetParentsForAll(roleIDs []string) (map[string][]string, error) {
	edges, err := m.store.GetGroupingPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to load inheritance edges: %w", err)
	}

	parents := make(map[string][]string, len(roleIDs))
	wanted := make(map[string]string, len(roleIDs))
	for _, id := range roleIDs {
		parents[id] = nil
		wanted[policy.RoleSubject(id)] = id
	}

	for _, edge := range edges {
		if len(edge) < 2 {
			continue
		}
		childID, ok := wanted[edge[0]]
		if !ok {
			continue
		}
		if parentID, ok := policy.SubjectRoleID(edge[1]); ok {
			parents[childID] = append(parents[childID], parentID)
		}
	}

	return parents, nil
}

// CleanInheritance removes every edge touching a role, both where it is
// the child and where it is the parent. Callers invoke this strictly
// before deleting the role row so no orphan edges survive.
func (m *Manager) CleanInheritance(roleID string) error {
	subject := policy.RoleSubject(roleID)

	if _, err := m.store.RemoveFilteredGroupingPolicy(0, subject); err != nil {
		return fmt.Errorf("failed to remove outbound edges of role %s: %w", roleID, err)
	}
	if _, err := m.store.RemoveFilteredGroupingPolicy(1, subject); err != nil {
		return fmt.Errorf("failed to remove inbound edges of role %s: %w", roleID, err)
	}
	return nil
}

func roleIDs(subjects []string) []string {
	ids := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if id, ok := policy.SubjectRoleID(s); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *Manager) observe(result string) {
	if m.metrics != nil {
		m.metrics.HierarchyChecksTotal.WithLabelValues(result).Inc()
	}
}
