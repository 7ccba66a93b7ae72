package dataguard

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ============================================================================
// ADMINISTRATIVE API
// ============================================================================

// PermissionEdits is the set of additions and removals applied to a user's
// roles, groups and direct grants in one mutation.
type PermissionEdits struct {
	AddRoles          []string
	RemoveRoles       []string
	AddGroups         []string
	RemoveGroups      []string
	AddPermissions    []Permission
	RemovePermissions []Permission
}

// ChangeMeta records who made a mutation and why. Silent suppresses the
// change event.
type ChangeMeta struct {
	ChangedBy string
	Reason    string
	Silent    bool
}

// UpdateUserPermissions applies set union/difference edits to the stored
// UserPermissions, persists the result, invalidates the user's cache entry,
// and emits one deduplicated PermissionChange describing the delta over the
// expanded (unresolved) token sets. No event is emitted when nothing
// changed or when meta.Silent is set.
func (e *Engine) UpdateUserPermissions(ctx context.Context, userID string, edits PermissionEdits, meta ChangeMeta) (*UserPermissions, error) {
	up, err := e.users.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user permissions %s: %w", userID, err)
	}
	if up == nil {
		up = &UserPermissions{UserID: userID}
	}

	oldTokens := expandedTokens(up)

	up.RoleIDs = editStringSet(up.RoleIDs, edits.AddRoles, edits.RemoveRoles)
	up.GroupIDs = editStringSet(up.GroupIDs, edits.AddGroups, edits.RemoveGroups)
	up.DirectPermissions = editPermissionSet(up.DirectPermissions, edits.AddPermissions, edits.RemovePermissions)
	up.UpdatedAt = time.Now()

	if err := e.users.SaveUserPermissions(ctx, up); err != nil {
		return nil, fmt.Errorf("save user permissions %s: %w", userID, err)
	}
	e.resolver.Invalidate(userID)

	newTokens := expandedTokens(up)
	added, removed := diffTokens(oldTokens, newTokens)
	if len(added) == 0 && len(removed) == 0 {
		return up, nil
	}

	e.log.Info("user permissions updated",
		"user_id", userID, "added", len(added), "removed", len(removed), "changed_by", meta.ChangedBy)

	if meta.Silent || e.notifier == nil {
		return up, nil
	}
	change := &PermissionChange{
		UserID:    userID,
		Kind:      changeKind(added, removed),
		Added:     added,
		Removed:   removed,
		ChangedBy: meta.ChangedBy,
		Reason:    meta.Reason,
		Timestamp: up.UpdatedAt,
	}
	if err := e.notifier.NotifyPermissionChange(ctx, change); err != nil {
		// fire-and-forget: delivery problems belong to the notification side
		e.log.Error("permission change notification failed", "user_id", userID, "error", err.Error())
	}
	return up, nil
}

// SaveRole creates or updates a role and flushes the whole permission cache,
// since a role edit can change the effective permissions of many users.
func (e *Engine) SaveRole(ctx context.Context, role *Role) error {
	if role == nil || role.ID == "" {
		return fmt.Errorf("role id is required")
	}
	existing, err := e.roles.GetRole(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("fetch role %s: %w", role.ID, err)
	}
	if existing == nil {
		err = e.roles.CreateRole(ctx, role)
	} else {
		err = e.roles.UpdateRole(ctx, role)
	}
	if err != nil {
		return err
	}
	e.resolver.InvalidateAll()
	return nil
}

// SaveGroup creates or updates a permission group and flushes the cache.
func (e *Engine) SaveGroup(ctx context.Context, group *PermissionGroup) error {
	if group == nil || group.ID == "" {
		return fmt.Errorf("group id is required")
	}
	existing, err := e.groups.GetGroup(ctx, group.ID)
	if err != nil {
		return fmt.Errorf("fetch group %s: %w", group.ID, err)
	}
	if existing == nil {
		err = e.groups.CreateGroup(ctx, group)
	} else {
		err = e.groups.UpdateGroup(ctx, group)
	}
	if err != nil {
		return err
	}
	e.resolver.InvalidateAll()
	return nil
}

// expandedTokens flattens a UserPermissions record into its source tokens:
// role and group ids (prefixed by kind) plus raw direct grants. These are the
// unresolved sources, not the flat effective permissions.
func expandedTokens(up *UserPermissions) map[string]struct{} {
	tokens := make(map[string]struct{}, len(up.RoleIDs)+len(up.GroupIDs)+len(up.DirectPermissions))
	for _, id := range up.RoleIDs {
		tokens["role:"+id] = struct{}{}
	}
	for _, id := range up.GroupIDs {
		tokens["group:"+id] = struct{}{}
	}
	for _, p := range up.DirectPermissions {
		tokens[string(p)] = struct{}{}
	}
	return tokens
}

func diffTokens(before, after map[string]struct{}) (added, removed []string) {
	for t := range after {
		if _, ok := before[t]; !ok {
			added = append(added, t)
		}
	}
	for t := range before {
		if _, ok := after[t]; !ok {
			removed = append(removed, t)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func changeKind(added, removed []string) ChangeKind {
	switch {
	case len(removed) == 0:
		return ChangeAdded
	case len(added) == 0:
		return ChangeRemoved
	}
	return ChangeModified
}

func editStringSet(current, add, remove []string) []string {
	set := make(map[string]struct{}, len(current)+len(add))
	order := make([]string, 0, len(current)+len(add))
	for _, s := range current {
		if _, ok := set[s]; !ok {
			set[s] = struct{}{}
			order = append(order, s)
		}
	}
	for _, s := range add {
		if _, ok := set[s]; !ok {
			set[s] = struct{}{}
			order = append(order, s)
		}
	}
	drop := make(map[string]struct{}, len(remove))
	for _, s := range remove {
		drop[s] = struct{}{}
	}
	out := order[:0]
	for _, s := range order {
		if _, gone := drop[s]; !gone {
			out = append(out, s)
		}
	}
	return out
}

func editPermissionSet(current, add, remove []Permission) []Permission {
	cur := make([]string, len(current))
	for i, p := range current {
		cur[i] = string(p)
	}
	adds := make([]string, len(add))
	for i, p := range add {
		adds[i] = string(p)
	}
	drops := make([]string, len(remove))
	for i, p := range remove {
		drops[i] = string(p)
	}
	edited := editStringSet(cur, adds, drops)
	out := make([]Permission, len(edited))
	for i, s := range edited {
		out[i] = Permission(s)
	}
	return out
}
