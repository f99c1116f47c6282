// Package menus manages the menu tree and resolves per-user route
// trees with a Redis cache-aside layer.
package menus
