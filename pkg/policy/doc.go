// Package policy wraps the casbin enforcer behind a Store interface and
// persists rules through a database/sql adapter. Permission rules are
// [subject, object, action, effect] tuples; role inheritance and
// user-role membership both live in the grouping relation.
package policy
