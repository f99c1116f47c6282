package menus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stackgate/admind/pkg/cache"
	"github.com/stackgate/admind/pkg/config"
	"github.com/stackgate/admind/pkg/observability"
	"github.com/stackgate/admind/pkg/policy"
)

// Resolver computes the route tree a user may navigate, with a
// cache-aside layer in front of the role and menu lookups. Cached
// entries are invalidated domain-wide by the mutating services, and
// expire on TTL as a backstop.
type Resolver struct {
	store    *Store
	policies policy.Store
	cache    *cache.Cache
	cfg      config.CacheConfig
	home     string
	logger   *observability.Logger
}

// NewResolver creates a route resolver.
func NewResolver(store *Store, policies policy.Store, c *cache.Cache, cacheCfg config.CacheConfig, routesCfg config.RoutesConfig, logger *observability.Logger) *Resolver {
	return &Resolver{
		store:    store,
		policies: policies,
		cache:    c,
		cfg:      cacheCfg,
		home:     routesCfg.DefaultHome,
		logger:   logger,
	}
}

// GetUserRoutes resolves the visible route tree for a user in a domain.
// A user with no roles gets an empty result, cached briefly so repeated
// lookups for unprovisioned users stay cheap.
func (r *Resolver) GetUserRoutes(ctx context.Context, userID, domain string) (*UserRoutes, error) {
	key := cache.UserRoutesKey(domain, userID)

	if r.cache != nil {
		if cached, found, err := r.cache.Get(ctx, key); err == nil && found {
			var routes UserRoutes
			if err := json.Unmarshal([]byte(cached), &routes); err == nil {
				return &routes, nil
			}
			// Unreadable entry; fall through and recompute.
			if r.logger != nil {
				r.logger.WithDomain(domain).Warn("discarding corrupt cached route tree")
			}
		} else if err != nil && r.logger != nil {
			r.logger.WithError(err).WithDomain(domain).Warn("route cache read failed")
		}
	}

	routes, err := r.resolve(ctx, userID, domain)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		ttl := r.cfg.RouteTTL
		if len(routes.Routes) == 0 {
			ttl = r.cfg.EmptyRouteTTL
		}
		if payload, err := json.Marshal(routes); err == nil {
			if err := r.cache.SetEx(ctx, key, string(payload), ttl); err != nil && r.logger != nil {
				r.logger.WithError(err).WithDomain(domain).Warn("route cache write failed")
			}
		}
	}

	return routes, nil
}

func (r *Resolver) resolve(ctx context.Context, userID, domain string) (*UserRoutes, error) {
	subjects, err := r.policies.GetImplicitRolesForSubject(policy.UserSubject(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles for user %s: %w", userID, err)
	}

	roleIDs := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if id, ok := policy.SubjectRoleID(s); ok {
			roleIDs = append(roleIDs, id)
		}
	}
	if len(roleIDs) == 0 {
		return &UserRoutes{Home: "", Routes: []*RouteNode{}}, nil
	}

	rows, err := r.store.GetEnabledForRoles(ctx, domain, roleIDs)
	if err != nil {
		return nil, err
	}

	tree := buildTree(rows)
	return &UserRoutes{
		Home:   r.computeHome(tree),
		Routes: tree,
	}, nil
}

// buildTree assembles menu rows into a forest keyed by parent id.
// Children whose parent is missing from the visible set are promoted to
// roots rather than dropped. Levels are sorted by order ascending.
func buildTree(rows []*Menu) []*RouteNode {
	nodes := make(map[string]*RouteNode, len(rows))
	for _, m := range rows {
		nodes[m.ID] = &RouteNode{
			ID:        m.ID,
			Name:      m.Name,
			Path:      m.Path,
			Component: m.Component,
			Meta: RouteMeta{
				Title:  m.Title,
				Icon:   m.Icon,
				Hidden: m.Hidden,
				Order:  m.Order,
			},
		}
	}

	var roots []*RouteNode
	for _, m := range rows {
		node := nodes[m.ID]
		if m.ParentID != "" {
			if parent, ok := nodes[m.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	sortLevel(roots)
	for _, node := range nodes {
		sortLevel(node.Children)
	}
	return roots
}

func sortLevel(level []*RouteNode) {
	sort.SliceStable(level, func(i, j int) bool {
		return level[i].Meta.Order < level[j].Meta.Order
	})
}

// computeHome picks the first non-hidden leaf in a pre-order walk of
// the tree. No visible leaf means the configured default.
func (r *Resolver) computeHome(tree []*RouteNode) string {
	var walk func(nodes []*RouteNode) string
	walk = func(nodes []*RouteNode) string {
		for _, node := range nodes {
			if node.Meta.Hidden {
				continue
			}
			if len(node.Children) == 0 {
				return node.Name
			}
			if home := walk(node.Children); home != "" {
				return home
			}
		}
		return ""
	}

	if home := walk(tree); home != "" {
		return home
	}
	return r.home
}
