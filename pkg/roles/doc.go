// Package roles provides role lifecycle management for tenant domains:
// CRUD, inheritance edges, user membership, and permission assignment
// endpoints.
package roles
