package dataguard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedStores(t *testing.T) (*MemoryUserStore, *MemoryRoleStore, *MemoryGroupStore) {
	t.Helper()
	ctx := context.Background()
	users := NewMemoryUserStore()
	roles := NewMemoryRoleStore()
	groups := NewMemoryGroupStore()

	_ = roles.CreateRole(ctx, &Role{ID: "viewer", Name: "Viewer", Permissions: []Permission{"report:read", "goal:read"}})
	_ = roles.CreateRole(ctx, &Role{ID: "admin", Name: "Admin", Permissions: []Permission{"*:manage"}, IsSystem: true})

	_ = groups.CreateGroup(ctx, &PermissionGroup{ID: "basic", Name: "Basic", Permissions: []Permission{"dashboard:read"}})
	_ = groups.CreateGroup(ctx, &PermissionGroup{ID: "advanced", Name: "Advanced", Permissions: []Permission{"report:export"}, ParentIDs: []string{"basic"}})

	return users, roles, groups
}

func newResolver(users UserStore, roles RoleStore, groups GroupStore) *PermissionResolver {
	return NewPermissionResolver(users, roles, groups, NewMemoryPermissionCache(time.Minute), nil)
}

func TestResolveUnknownUserIsEmptySet(t *testing.T) {
	users, roles, groups := seedStores(t)
	r := newResolver(users, roles, groups)

	perms, err := r.Resolve(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected empty set for unknown user, got %v", perms.List())
	}
}

func TestResolveSupersetOfDirectPermissions(t *testing.T) {
	ctx := context.Background()
	users, roles, groups := seedStores(t)
	_ = users.SaveUserPermissions(ctx, &UserPermissions{
		UserID:            "alice",
		RoleIDs:           []string{"viewer"},
		DirectPermissions: []Permission{"goal:write", "special:read"},
	})
	r := newResolver(users, roles, groups)

	perms, err := r.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, direct := range []Permission{"goal:write", "special:read"} {
		if !perms.Has(direct) {
			t.Fatalf("effective set must contain direct grant %s", direct)
		}
	}
	if !perms.Has("report:read") {
		t.Fatalf("effective set must contain role permission report:read")
	}
}

func TestResolveGroupParentInheritance(t *testing.T) {
	// user holds only group "advanced"; its parent "basic" must contribute too
	ctx := context.Background()
	users, roles, groups := seedStores(t)
	_ = users.SaveUserPermissions(ctx, &UserPermissions{UserID: "bob", GroupIDs: []string{"advanced"}})
	r := newResolver(users, roles, groups)

	perms, err := r.Resolve(ctx, "bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !perms.Has("report:export") {
		t.Fatalf("missing own group permission")
	}
	if !perms.Has("dashboard:read") {
		t.Fatalf("missing inherited parent group permission")
	}
}

func TestResolveCyclicGroupGraphTerminates(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserStore()
	roles := NewMemoryRoleStore()
	groups := NewMemoryGroupStore()

	// A's parent is B, B's parent is A
	_ = groups.CreateGroup(ctx, &PermissionGroup{ID: "a", Name: "A", Permissions: []Permission{"x:read"}, ParentIDs: []string{"b"}})
	_ = groups.CreateGroup(ctx, &PermissionGroup{ID: "b", Name: "B", Permissions: []Permission{"y:read"}, ParentIDs: []string{"a"}})
	_ = users.SaveUserPermissions(ctx, &UserPermissions{UserID: "cyclic", GroupIDs: []string{"a"}})

	r := newResolver(users, roles, groups)
	done := make(chan PermissionSet, 1)
	go func() {
		perms, err := r.Resolve(ctx, "cyclic")
		if err != nil {
			t.Errorf("resolve: %v", err)
		}
		done <- perms
	}()
	select {
	case perms := <-done:
		if !perms.Has("x:read") || !perms.Has("y:read") {
			t.Fatalf("cycle members must both contribute, got %v", perms.List())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("resolution did not terminate on cyclic group graph")
	}
}

func TestResolveMissingRoleAndGroupContributeNothing(t *testing.T) {
	ctx := context.Background()
	users, roles, groups := seedStores(t)
	_ = users.SaveUserPermissions(ctx, &UserPermissions{
		UserID:            "carol",
		RoleIDs:           []string{"viewer", "ghost-role"},
		GroupIDs:          []string{"ghost-group"},
		DirectPermissions: []Permission{"direct:read"},
	})
	r := newResolver(users, roles, groups)

	perms, err := r.Resolve(ctx, "carol")
	if err != nil {
		t.Fatalf("missing role/group must not be an error: %v", err)
	}
	if !perms.Has("report:read") || !perms.Has("direct:read") {
		t.Fatalf("known sources must still contribute, got %v", perms.List())
	}
}

func TestCheckOrderExactThenManageThenGlobal(t *testing.T) {
	ctx := context.Background()
	users, roles, groups := seedStores(t)
	_ = users.SaveUserPermissions(ctx, &UserPermissions{UserID: "exact", DirectPermissions: []Permission{"report:read"}})
	_ = users.SaveUserPermissions(ctx, &UserPermissions{UserID: "manager", DirectPermissions: []Permission{"report:manage"}})
	_ = users.SaveUserPermissions(ctx, &UserPermissions{UserID: "root", RoleIDs: []string{"admin"}})
	r := newResolver(users, roles, groups)

	cases := []struct {
		user      string
		matchedBy string
	}{
		{"exact", "exact"},
		{"manager", "manage"},
		{"root", "global"},
	}
	for _, tc := range cases {
		dec, err := r.Check(ctx, tc.user, "report", "read")
		if err != nil {
			t.Fatalf("check %s: %v", tc.user, err)
		}
		if !dec.Allowed || dec.MatchedBy != tc.matchedBy {
			t.Fatalf("user %s: expected allow via %s, got allowed=%v matched_by=%s", tc.user, tc.matchedBy, dec.Allowed, dec.MatchedBy)
		}
	}
}

func TestCheckDenialIsValueNotError(t *testing.T) {
	ctx := context.Background()
	users, roles, groups := seedStores(t)
	r := newResolver(users, roles, groups)

	dec, err := r.Check(ctx, "nobody", "report", "delete")
	if err != nil {
		t.Fatalf("denial must not be an error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected denial")
	}
	if dec.Reason == "" {
		t.Fatalf("denial must carry a reason for audit logging")
	}
}

// failingUserStore simulates a transient store outage.
type failingUserStore struct{}

func (f *failingUserStore) GetUserPermissions(ctx context.Context, userID string) (*UserPermissions, error) {
	return nil, errors.New("connection refused")
}
func (f *failingUserStore) SaveUserPermissions(ctx context.Context, up *UserPermissions) error {
	return errors.New("connection refused")
}
func (f *failingUserStore) DeleteUserPermissions(ctx context.Context, userID string) error {
	return errors.New("connection refused")
}

func TestStoreUnavailablePropagatesAsError(t *testing.T) {
	// a transient outage must not silently degrade to "no permissions"
	_, roles, groups := seedStores(t)
	r := newResolver(&failingUserStore{}, roles, groups)

	if _, err := r.Resolve(context.Background(), "anyone"); err == nil {
		t.Fatalf("expected store failure to propagate")
	}
}

func TestResolveUsesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	users, roles, groups := seedStores(t)
	_ = users.SaveUserPermissions(ctx, &UserPermissions{UserID: "dave", DirectPermissions: []Permission{"a:read"}})
	r := newResolver(users, roles, groups)

	if _, err := r.Resolve(ctx, "dave"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// store write without invalidation: cached set is served (the accepted
	// staleness window)
	_ = users.SaveUserPermissions(ctx, &UserPermissions{UserID: "dave", DirectPermissions: []Permission{"a:read", "b:read"}})
	perms, _ := r.Resolve(ctx, "dave")
	if perms.Has("b:read") {
		t.Fatalf("expected stale cached set before invalidation")
	}

	r.Invalidate("dave")
	perms, _ = r.Resolve(ctx, "dave")
	if !perms.Has("b:read") {
		t.Fatalf("expected fresh set after invalidation")
	}
}
