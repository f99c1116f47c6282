package policy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
)

// maxRuleFields is the number of value columns in casbin_rules (v0..v5).
const maxRuleFields = 6

// Adapter persists policy rules in the casbin_rules table. It implements
// persist.BatchAdapter so multi-tuple mutations hit the database once.
type Adapter struct {
	db      *sql.DB
	timeout time.Duration
}

var _ persist.BatchAdapter = (*Adapter)(nil)

// NewAdapter creates a policy adapter over an existing database handle.
// The casbin_rules table is created by the migration runner, not here.
func NewAdapter(db *sql.DB) *Adapter {
	return &Adapter{db: db, timeout: 30 * time.Second}
}

// LoadPolicy loads all policy rules into the model.
func (a *Adapter) LoadPolicy(m model.Model) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	query := `
		SELECT ptype, v0, v1, v2, v3, v4, v5
		FROM casbin_rules
		ORDER BY id
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load policy rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ptype string
		vals := make([]sql.NullString, maxRuleFields)
		if err := rows.Scan(&ptype, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5]); err != nil {
			return fmt.Errorf("failed to scan policy rule: %w", err)
		}

		line := make([]string, 0, maxRuleFields+1)
		line = append(line, ptype)
		for _, v := range vals {
			if v.Valid && v.String != "" {
				line = append(line, v.String)
			}
		}
		if err := persist.LoadPolicyArray(line, m); err != nil {
			return fmt.Errorf("failed to load policy rule %v: %w", line, err)
		}
	}

	return rows.Err()
}

// SavePolicy replaces all stored rules with the model's current contents.
func (a *Adapter) SavePolicy(m model.Model) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM casbin_rules`); err != nil {
		return fmt.Errorf("failed to clear policy rules: %w", err)
	}

	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, rule := range ast.Policy {
				if err := insertRule(ctx, tx, ptype, rule); err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy save: %w", err)
	}
	return nil
}

// AddPolicy inserts a single rule.
func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	return insertRule(ctx, a.db, ptype, rule)
}

// AddPolicies inserts multiple rules in one transaction.
func (a *Adapter) AddPolicies(sec string, ptype string, rules [][]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rule := range rules {
		if err := insertRule(ctx, tx, ptype, rule); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy add: %w", err)
	}
	return nil
}

// RemovePolicy deletes a single rule.
func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	return deleteRule(ctx, a.db, ptype, rule)
}

// RemovePolicies deletes multiple rules in one transaction.
func (a *Adapter) RemovePolicies(sec string, ptype string, rules [][]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rule := range rules {
		if err := deleteRule(ctx, tx, ptype, rule); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy removal: %w", err)
	}
	return nil
}

// RemoveFilteredPolicy deletes rules matching the non-empty field values
// starting at fieldIndex.
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	conds := []string{"ptype = $1"}
	args := []interface{}{ptype}
	for i, v := range fieldValues {
		if v == "" {
			continue
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("v%d = $%d", fieldIndex+i, len(args)))
	}

	query := fmt.Sprintf(`DELETE FROM casbin_rules WHERE %s`, strings.Join(conds, " AND "))
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove filtered policy: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertRule(ctx context.Context, db execer, ptype string, rule []string) error {
	vals := padRule(rule)

	query := `
		INSERT INTO casbin_rules (ptype, v0, v1, v2, v3, v4, v5)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err := db.ExecContext(ctx, query, ptype, vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]); err != nil {
		return fmt.Errorf("failed to insert policy rule: %w", err)
	}
	return nil
}

func deleteRule(ctx context.Context, db execer, ptype string, rule []string) error {
	vals := padRule(rule)

	query := `
		DELETE FROM casbin_rules
		WHERE ptype = $1 AND v0 = $2 AND v1 = $3 AND v2 = $4 AND v3 = $5 AND v4 = $6 AND v5 = $7
	`

	if _, err := db.ExecContext(ctx, query, ptype, vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]); err != nil {
		return fmt.Errorf("failed to delete policy rule: %w", err)
	}
	return nil
}

// padRule extends a rule to the full column width so that stored rules
// compare equal regardless of arity. Empty string, not NULL, keeps the
// delete predicate simple.
func padRule(rule []string) []string {
	vals := make([]string, maxRuleFields)
	copy(vals, rule)
	return vals
}
