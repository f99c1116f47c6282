// Package cache provides the Redis-backed TTL cache and the domain-scoped
// key builders used for coarse cache invalidation.
package cache
