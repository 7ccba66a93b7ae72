package dataguard

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/dataguard/logger"
)

// ============================================================================
// ACCESS CONTROL ENGINE
// ============================================================================

// Engine is the single entry point for consumers: permission checks, row
// filtering and field control. The resolver, cache, policy store and masking
// registry behind it are wired at construction and not reached around.
type Engine struct {
	users    UserStore
	roles    RoleStore
	groups   GroupStore
	resolver *PermissionResolver
	policies *AccessPolicyStore
	masking  *MaskingRegistry
	cache    PermissionCache
	notifier PermissionChangeNotifier
	log      logger.Logger
}

type EngineOption func(*Engine) error

// WithLogger installs a Logger on the Engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// WithCache replaces the default in-memory TTL cache.
func WithCache(c PermissionCache) EngineOption {
	return func(e *Engine) error {
		e.cache = c
		return nil
	}
}

// WithCacheTTL sets the TTL of the default in-memory cache. Ignored when
// WithCache supplies a cache.
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive, got %s", ttl)
		}
		if e.cache == nil {
			e.cache = NewMemoryPermissionCache(ttl)
		}
		return nil
	}
}

// WithNotifier installs the outbound change-notification hook.
func WithNotifier(n PermissionChangeNotifier) EngineOption {
	return func(e *Engine) error {
		e.notifier = n
		return nil
	}
}

func NewEngine(users UserStore, roles RoleStore, groups GroupStore, opts ...EngineOption) (*Engine, error) {
	e := &Engine{users: users, roles: roles, groups: groups}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.log == nil {
		e.log = logger.NewNullLogger()
	}
	if e.cache == nil {
		e.cache = NewMemoryPermissionCache(DefaultCacheTTL)
	}
	e.resolver = NewPermissionResolver(users, roles, groups, e.cache, e.log)
	e.policies = NewAccessPolicyStore()
	e.masking = NewMaskingRegistry(e.resolver, e.log)
	return e, nil
}

// Resolver exposes the permission resolver for collaborators that only need
// point checks (e.g. HTTP middleware).
func (e *Engine) Resolver() *PermissionResolver { return e.resolver }

// Policies exposes the policy store for startup wiring and runtime swaps.
func (e *Engine) Policies() *AccessPolicyStore { return e.policies }

// Masking exposes the masking registry for rule registration.
func (e *Engine) Masking() *MaskingRegistry { return e.masking }

// HasPermission reports whether the user holds the permission, including
// manage-wildcard semantics. Unknown users and unknown roles/groups simply
// lack permissions; only store unavailability is an error.
func (e *Engine) HasPermission(ctx context.Context, userID string, perm Permission) (bool, error) {
	resource, action := perm.Split()
	dec, err := e.resolver.Check(ctx, userID, resource, action)
	if err != nil {
		return false, err
	}
	if !dec.Allowed {
		e.log.Debug("permission denied", "user_id", userID, "permission", string(perm), "reason", dec.Reason)
	}
	return dec.Allowed, nil
}

// CheckPermission is HasPermission with the full Decision, for callers that
// log or audit the reason.
func (e *Engine) CheckPermission(ctx context.Context, userID, resource, action string) (*Decision, error) {
	return e.resolver.Check(ctx, userID, resource, action)
}

// FilterRows returns the rows the user may see. A resource with no row rules
// is fully visible. Otherwise a row passes if any rule's required
// permissions are all held and all its conditions evaluate true against the
// row and context; evaluation short-circuits on the first allowing rule.
func (e *Engine) FilterRows(ctx context.Context, userID, resource string, rows []Record, evalCtx Context) ([]Record, error) {
	rules := e.policies.rowRulesFor(resource)
	if len(rules) == 0 {
		return rows, nil
	}
	perms, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		if e.rowAllowed(perms, rules, row, evalCtx, resource) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (e *Engine) rowAllowed(perms PermissionSet, rules []compiledRowRule, row Record, evalCtx Context, resource string) bool {
	for _, rule := range rules {
		if !perms.HasAll(rule.perms) {
			continue
		}
		allowed := true
		for _, cond := range rule.conds {
			ok, malformed := cond.eval(row, evalCtx)
			if malformed != "" {
				e.log.Info("malformed row condition treated as unsatisfied",
					"resource", resource, "field", cond.field, "detail", malformed)
			}
			if !ok {
				allowed = false
				break
			}
		}
		if allowed {
			return true
		}
	}
	return false
}

// ApplyFieldControls returns a copy of record with field rules applied: a
// field whose required permissions are not all held is deleted outright;
// a retained field with a masking rule is replaced by its masked value.
// Rules act independently per field and the input record is not mutated.
func (e *Engine) ApplyFieldControls(ctx context.Context, userID, resource string, record Record) (Record, error) {
	rules := e.policies.FieldRulesFor(resource)
	out := make(Record, len(record))
	for k, v := range record {
		out[k] = v
	}
	if len(rules) == 0 {
		return out, nil
	}
	perms, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		value, present := out[rule.Field]
		if !present {
			continue
		}
		if !perms.HasAll(rule.RequiredPermissions) {
			delete(out, rule.Field)
			continue
		}
		if rule.Masking != nil {
			out[rule.Field] = e.masking.MaskWithRule(ctx, value, rule.Masking, userID)
		}
	}
	return out, nil
}

// Process runs row filtering and then field control over the survivors. Rows
// the user may not see are dropped before any field evaluation, so field
// masking can never leak parts of an invisible record.
func (e *Engine) Process(ctx context.Context, userID, resource string, rows []Record, evalCtx Context) ([]Record, error) {
	visible, err := e.FilterRows(ctx, userID, resource, rows, evalCtx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(visible))
	for _, row := range visible {
		processed, err := e.ApplyFieldControls(ctx, userID, resource, row)
		if err != nil {
			return nil, err
		}
		out = append(out, processed)
	}
	return out, nil
}

// InvalidateUser drops the user's cached permission set. Call after any
// mutation of the user's roles, groups or direct grants.
func (e *Engine) InvalidateUser(userID string) {
	e.resolver.Invalidate(userID)
}

// InvalidateAll flushes the permission cache. Call after role or group
// edits, which can affect many users.
func (e *Engine) InvalidateAll() {
	e.resolver.InvalidateAll()
}
