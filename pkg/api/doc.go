// Package api assembles the HTTP surface: the versioned API router with
// its middleware chain on one port, and health probes plus Prometheus
// metrics on another.
package api
