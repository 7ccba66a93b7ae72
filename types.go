package dataguard

import (
	"context"
	"sort"
	"strings"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Permission is a "resource:action" token, e.g. "user:read". The wildcard
// forms "resource:manage" and "*:manage" grant every action on a resource and
// every action on every resource respectively.
type Permission string

// Perm builds a Permission from its resource and action parts.
func Perm(resource, action string) Permission {
	return Permission(resource + ":" + action)
}

// Split returns the resource and action parts of the token. Tokens are split
// on the first ':' only; a token without ':' yields an empty action.
func (p Permission) Split() (resource, action string) {
	s := string(p)
	if idx := strings.Index(s, ":"); idx != -1 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

// Resource returns the resource part of the token.
func (p Permission) Resource() string {
	r, _ := p.Split()
	return r
}

// Action returns the action part of the token.
func (p Permission) Action() string {
	_, a := p.Split()
	return a
}

// PermissionSet is a deduplicated set of permission tokens.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s PermissionSet) Add(perms ...Permission) {
	for _, p := range perms {
		s[p] = struct{}{}
	}
}

// HasAll reports whether every permission in perms is present.
func (s PermissionSet) HasAll(perms []Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one permission in perms is present.
// An empty perms slice yields false.
func (s PermissionSet) HasAny(perms []Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// List returns the tokens in lexical order.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Role is a named collection of permissions. System roles are protected from
// deletion by the administrative store, not by the engine.
type Role struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
	IsSystem    bool         `json:"is_system,omitempty" yaml:"is_system,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// PermissionGroup owns permissions directly and inherits from parent groups.
// Parent graphs come from admin UIs with no cycle check, so resolution must
// treat them as potentially cyclic.
type PermissionGroup struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
	ParentIDs   []string     `json:"parent_ids,omitempty" yaml:"parent_ids,omitempty"`
}

// UserPermissions is the per-user assignment record fetched from the store:
// role ids, group ids and direct grants. Effective permissions are computed
// over this unit.
type UserPermissions struct {
	UserID            string       `json:"user_id" yaml:"user_id"`
	RoleIDs           []string     `json:"role_ids,omitempty" yaml:"role_ids,omitempty"`
	GroupIDs          []string     `json:"group_ids,omitempty" yaml:"group_ids,omitempty"`
	DirectPermissions []Permission `json:"direct_permissions,omitempty" yaml:"direct_permissions,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// ============================================================================
// DATA ACCESS POLICIES
// ============================================================================

// DataAccessPolicy bundles field and row rules. Policies are additive: the
// effective rule set for a resource is the union of rules across all active
// policies.
type DataAccessPolicy struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	IsActive    bool                 `json:"is_active" yaml:"is_active"`
	FieldRules  []FieldAccessControl `json:"field_rules,omitempty" yaml:"field_rules,omitempty"`
	RowRules    []RowAccessControl   `json:"row_rules,omitempty" yaml:"row_rules,omitempty"`
}

// FieldAccessControl gates a single field of a resource. A caller missing any
// required permission loses the field entirely; a caller holding them all may
// still see a masked value if a MaskingRule is attached.
type FieldAccessControl struct {
	Field               string       `json:"field" yaml:"field"`
	Resource            string       `json:"resource" yaml:"resource"`
	RequiredPermissions []Permission `json:"required_permissions" yaml:"required_permissions"`
	Masking             *MaskingRule `json:"masking,omitempty" yaml:"masking,omitempty"`
}

// RowAccessControl grants visibility of rows whose conditions all hold, to
// callers holding every required permission. Multiple rules for the same
// resource are OR'd.
type RowAccessControl struct {
	Resource            string         `json:"resource" yaml:"resource"`
	RequiredPermissions []Permission   `json:"required_permissions" yaml:"required_permissions"`
	Conditions          []RowCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Description         string         `json:"description,omitempty" yaml:"description,omitempty"`
}

// RowCondition compares a row field against a literal or a context
// placeholder of the form "{user.department}". Placeholder paths are resolved
// against the caller-supplied context at evaluation time.
type RowCondition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Record is one data row as handed to the engine by the API layer.
type Record = map[string]any

// Context carries caller attributes (typically about the requesting user)
// used to resolve condition placeholders.
type Context = map[string]any

// ============================================================================
// DECISIONS & CHANGE EVENTS
// ============================================================================

// Decision is the outcome of a permission check. Denial is a normal result
// value, never an error; the reason string is for logs and audit only and
// must not be shown to end users.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	MatchedBy string    `json:"matched_by,omitempty"` // exact, manage, global
	Timestamp time.Time `json:"timestamp"`
}

// ChangeKind classifies a permission mutation by comparing the expanded
// token sets before and after.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// PermissionChange is the event emitted after a mutation alters a user's
// expanded permission sources. Token lists are deduplicated and sorted.
type PermissionChange struct {
	UserID    string     `json:"user_id"`
	Kind      ChangeKind `json:"kind"`
	Added     []string   `json:"added,omitempty"`
	Removed   []string   `json:"removed,omitempty"`
	ChangedBy string     `json:"changed_by,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// Stores return (nil, nil) when the requested record does not exist; absence
// contributes no permissions and is never an error. A non-nil error means the
// store itself is unavailable and is propagated to the caller.

type UserStore interface {
	GetUserPermissions(ctx context.Context, userID string) (*UserPermissions, error)
	SaveUserPermissions(ctx context.Context, up *UserPermissions) error
	DeleteUserPermissions(ctx context.Context, userID string) error
}

type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id string) error
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
}

type GroupStore interface {
	CreateGroup(ctx context.Context, g *PermissionGroup) error
	UpdateGroup(ctx context.Context, g *PermissionGroup) error
	DeleteGroup(ctx context.Context, id string) error
	GetGroup(ctx context.Context, id string) (*PermissionGroup, error)
	ListGroups(ctx context.Context) ([]*PermissionGroup, error)
}
