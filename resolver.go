package dataguard

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/dataguard/logger"
)

// GlobalManage grants every action on every resource.
const GlobalManage Permission = "*:manage"

// manageAction is the per-resource wildcard action: "report:manage" implies
// every action on "report".
const manageAction = "manage"

// PermissionResolver computes effective permission sets from the external
// store: role permissions, group permissions (with multi-level parent
// inheritance), and direct grants, unioned and deduplicated. Results are
// memoized in the cache; mutation paths call Invalidate.
type PermissionResolver struct {
	users  UserStore
	roles  RoleStore
	groups GroupStore
	cache  PermissionCache
	log    logger.Logger
}

func NewPermissionResolver(users UserStore, roles RoleStore, groups GroupStore, cache PermissionCache, log logger.Logger) *PermissionResolver {
	if cache == nil {
		cache = NewMemoryPermissionCache(DefaultCacheTTL)
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &PermissionResolver{users: users, roles: roles, groups: groups, cache: cache, log: log}
}

// Resolve returns the user's effective permission set. An unknown user
// resolves to the empty set; unknown roles and groups contribute nothing.
// Store failures are returned as errors, never silently mapped to "no
// permissions" — the caller decides how to degrade.
func (r *PermissionResolver) Resolve(ctx context.Context, userID string) (PermissionSet, error) {
	if cached, ok := r.cache.Get(userID); ok {
		return cached, nil
	}

	up, err := r.users.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user permissions %s: %w", userID, err)
	}
	perms := make(PermissionSet)
	if up == nil {
		r.cache.Put(userID, perms)
		return perms, nil
	}

	for _, roleID := range up.RoleIDs {
		role, err := r.roles.GetRole(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("fetch role %s: %w", roleID, err)
		}
		if role == nil {
			r.log.Debug("role not found during resolution", "user_id", userID, "role_id", roleID)
			continue
		}
		perms.Add(role.Permissions...)
	}

	visited := make(map[string]bool)
	for _, groupID := range up.GroupIDs {
		if err := r.expandGroup(ctx, groupID, visited, perms); err != nil {
			return nil, err
		}
	}

	perms.Add(up.DirectPermissions...)

	r.cache.Put(userID, perms)
	return perms, nil
}

// expandGroup unions a group's permissions and recurses into its parents,
// depth-first. The visited set marks each group before recursing so cyclic
// parent graphs (which admin UIs can produce) terminate with every group
// expanded at most once per resolution.
func (r *PermissionResolver) expandGroup(ctx context.Context, groupID string, visited map[string]bool, perms PermissionSet) error {
	if visited[groupID] {
		return nil
	}
	visited[groupID] = true

	group, err := r.groups.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("fetch group %s: %w", groupID, err)
	}
	if group == nil {
		r.log.Debug("group not found during resolution", "group_id", groupID)
		return nil
	}
	perms.Add(group.Permissions...)
	for _, parentID := range group.ParentIDs {
		if err := r.expandGroup(ctx, parentID, visited, perms); err != nil {
			return err
		}
	}
	return nil
}

// Check answers a point query for resource:action. Membership is tested in
// order: the exact token, then resource:manage, then *:manage, short-
// circuiting on the first match. Denial is a Decision, not an error.
func (r *PermissionResolver) Check(ctx context.Context, userID, resource, action string) (*Decision, error) {
	perms, err := r.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if perms.Has(Perm(resource, action)) {
		return &Decision{Allowed: true, Reason: "permission held", MatchedBy: "exact", Timestamp: now}, nil
	}
	if perms.Has(Perm(resource, manageAction)) {
		return &Decision{Allowed: true, Reason: "manage permission on resource", MatchedBy: "manage", Timestamp: now}, nil
	}
	if perms.Has(GlobalManage) {
		return &Decision{Allowed: true, Reason: "global manage permission", MatchedBy: "global", Timestamp: now}, nil
	}
	return &Decision{
		Allowed:   false,
		Reason:    fmt.Sprintf("user %s lacks %s:%s (and no manage wildcard applies)", userID, resource, action),
		Timestamp: now,
	}, nil
}

// Invalidate drops the user's cached permission set.
func (r *PermissionResolver) Invalidate(userID string) {
	r.cache.Invalidate(userID)
}

// InvalidateAll flushes the cache. Called after role or group edits, which
// can change the effective permissions of many users at once.
func (r *PermissionResolver) InvalidateAll() {
	r.cache.InvalidateAll()
}
