// Package observability provides structured logging and Prometheus metrics
// shared across the admind services.
package observability
