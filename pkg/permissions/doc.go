// Package permissions reconciles a role's direct permission grants
// against a desired set, with inherited-grant validation and
// compensating rollback on partial failure.
package permissions
