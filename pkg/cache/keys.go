package cache

import (
	"context"
	"fmt"
)

// Key builders. Every cached entity is domain-qualified so that a single
// pattern delete can drop everything a domain-level mutation may have
// affected. Correctness over precision: the set of users touched by a
// role or menu change is not cheaply known.

// UserRoutesKey is the cache key for a user's resolved route tree.
func UserRoutesKey(domain, userID string) string {
	return fmt.Sprintf("routes:%s:user:%s", domain, userID)
}

// DomainRoutesPattern matches every cached route tree in a domain.
func DomainRoutesPattern(domain string) string {
	return fmt.Sprintf("routes:%s:*", domain)
}

// DomainPattern matches every cached entry in a domain, across entities.
func DomainPattern(domain string) string {
	return fmt.Sprintf("*:%s:*", domain)
}

// InvalidateDomainRoutes drops all cached route trees for a domain.
func (c *Cache) InvalidateDomainRoutes(ctx context.Context, domain string) error {
	_, err := c.DeletePattern(ctx, DomainRoutesPattern(domain))
	return err
}
