package policy

import (
	"database/sql"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"github.com/stackgate/admind/pkg/observability"
)

// Store is the policy surface the rest of the application depends on.
// Rules are [sub, obj, act, eft] tuples; grouping rules are [child, parent]
// edges. Add/remove are idempotent: the boolean result reports whether
// anything actually changed.
type Store interface {
	AddPolicies(rules [][]string) (bool, error)
	RemovePolicies(rules [][]string) (bool, error)
	RemoveFilteredPolicies(fieldIndex int, fieldValues ...string) (bool, error)
	GetPermissionsForSubject(subject string) ([][]string, error)
	GetImplicitPermissionsForSubject(subject string) ([][]string, error)
	GetRolesForSubject(subject string) ([]string, error)
	GetImplicitRolesForSubject(subject string) ([]string, error)
	AddGroupingPolicies(rules [][]string) (bool, error)
	RemoveGroupingPolicies(rules [][]string) (bool, error)
	RemoveFilteredGroupingPolicy(fieldIndex int, fieldValues ...string) (bool, error)
	GetGroupingPolicy() ([][]string, error)
	GetFilteredGroupingPolicy(fieldIndex int, fieldValues ...string) ([][]string, error)
	Enforce(subject, object, action string) (bool, error)
}

// Engine is the casbin-backed Store. The synced enforcer serializes
// mutations, so one Engine is shared across all services.
type Engine struct {
	enforcer *casbin.SyncedEnforcer
	logger   *observability.Logger
	metrics  *observability.Metrics
}

var _ Store = (*Engine)(nil)

// NewEngine creates the policy engine with rules persisted in the
// database. Existing rules are loaded eagerly.
func NewEngine(db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) (*Engine, error) {
	return newEngine(NewAdapter(db), logger, metrics)
}

// NewMemoryEngine creates an engine with no persistence. Used by tests.
func NewMemoryEngine() (*Engine, error) {
	return newEngine(nil, nil, nil)
}

func newEngine(adapter persist.Adapter, logger *observability.Logger, metrics *observability.Metrics) (*Engine, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if adapter != nil {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	return &Engine{
		enforcer: enforcer,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Reload re-reads all rules from the adapter, replacing in-memory
// state. Lets an instance pick up writes made by its peers.
func (e *Engine) Reload() error {
	err := e.enforcer.LoadPolicy()
	e.observe("reload", err)
	if err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}
	return nil
}

// AddPolicies inserts permission rules; rules that already exist cause
// a false result with no partial write.
func (e *Engine) AddPolicies(rules [][]string) (bool, error) {
	if len(rules) == 0 {
		return false, nil
	}
	ok, err := e.enforcer.AddPolicies(rules)
	e.observe("add_policies", err)
	if err != nil {
		return false, fmt.Errorf("failed to add policies: %w", err)
	}
	return ok, nil
}

// RemovePolicies deletes permission rules; missing rules yield false.
func (e *Engine) RemovePolicies(rules [][]string) (bool, error) {
	if len(rules) == 0 {
		return false, nil
	}
	ok, err := e.enforcer.RemovePolicies(rules)
	e.observe("remove_policies", err)
	if err != nil {
		return false, fmt.Errorf("failed to remove policies: %w", err)
	}
	return ok, nil
}

// RemoveFilteredPolicies deletes permission rules matching the given
// fields. Field index 0 matches the subject.
func (e *Engine) RemoveFilteredPolicies(fieldIndex int, fieldValues ...string) (bool, error) {
	ok, err := e.enforcer.RemoveFilteredPolicy(fieldIndex, fieldValues...)
	e.observe("remove_filtered_policies", err)
	if err != nil {
		return false, fmt.Errorf("failed to remove filtered policies: %w", err)
	}
	return ok, nil
}

// GetPermissionsForSubject returns rules granted directly to a subject.
func (e *Engine) GetPermissionsForSubject(subject string) ([][]string, error) {
	perms, err := e.enforcer.GetPermissionsForUser(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions for %s: %w", subject, err)
	}
	return perms, nil
}

// GetImplicitPermissionsForSubject returns direct rules plus rules
// inherited through the grouping relation, transitively.
func (e *Engine) GetImplicitPermissionsForSubject(subject string) ([][]string, error) {
	perms, err := e.enforcer.GetImplicitPermissionsForUser(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to get implicit permissions for %s: %w", subject, err)
	}
	return perms, nil
}

// GetRolesForSubject returns the subject's direct parents.
func (e *Engine) GetRolesForSubject(subject string) ([]string, error) {
	roles, err := e.enforcer.GetRolesForUser(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for %s: %w", subject, err)
	}
	return roles, nil
}

// GetImplicitRolesForSubject returns all ancestors of the subject.
func (e *Engine) GetImplicitRolesForSubject(subject string) ([]string, error) {
	roles, err := e.enforcer.GetImplicitRolesForUser(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to get implicit roles for %s: %w", subject, err)
	}
	return roles, nil
}

// AddGroupingPolicies inserts inheritance edges.
func (e *Engine) AddGroupingPolicies(rules [][]string) (bool, error) {
	if len(rules) == 0 {
		return false, nil
	}
	ok, err := e.enforcer.AddGroupingPolicies(rules)
	e.observe("add_grouping", err)
	if err != nil {
		return false, fmt.Errorf("failed to add grouping policies: %w", err)
	}
	return ok, nil
}

// RemoveGroupingPolicies deletes inheritance edges.
func (e *Engine) RemoveGroupingPolicies(rules [][]string) (bool, error) {
	if len(rules) == 0 {
		return false, nil
	}
	ok, err := e.enforcer.RemoveGroupingPolicies(rules)
	e.observe("remove_grouping", err)
	if err != nil {
		return false, fmt.Errorf("failed to remove grouping policies: %w", err)
	}
	return ok, nil
}

// RemoveFilteredGroupingPolicy deletes edges matching the given fields.
// Field index 0 matches the child side, 1 the parent side.
func (e *Engine) RemoveFilteredGroupingPolicy(fieldIndex int, fieldValues ...string) (bool, error) {
	ok, err := e.enforcer.RemoveFilteredGroupingPolicy(fieldIndex, fieldValues...)
	e.observe("remove_filtered_grouping", err)
	if err != nil {
		return false, fmt.Errorf("failed to remove filtered grouping policies: %w", err)
	}
	return ok, nil
}

// GetGroupingPolicy returns every inheritance edge.
func (e *Engine) GetGroupingPolicy() ([][]string, error) {
	rules, err := e.enforcer.GetGroupingPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to get grouping policies: %w", err)
	}
	return rules, nil
}

// GetFilteredGroupingPolicy returns edges matching the given fields.
func (e *Engine) GetFilteredGroupingPolicy(fieldIndex int, fieldValues ...string) ([][]string, error) {
	rules, err := e.enforcer.GetFilteredGroupingPolicy(fieldIndex, fieldValues...)
	if err != nil {
		return nil, fmt.Errorf("failed to get filtered grouping policies: %w", err)
	}
	return rules, nil
}

// Enforce evaluates a request against the model.
func (e *Engine) Enforce(subject, object, action string) (bool, error) {
	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("failed to enforce %s %s %s: %w", subject, object, action, err)
	}
	return allowed, nil
}

func (e *Engine) observe(operation string, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.PolicyOperationsTotal.WithLabelValues(operation, status).Inc()
}
