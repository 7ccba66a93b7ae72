package dataguard

import (
	"context"
	"sync"
	"time"
)

// In-memory store implementations for tests, demos and single-process
// deployments. SQL and Redis backed stores live in the stores package.

// MemoryUserStore holds UserPermissions records in a map.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*UserPermissions
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*UserPermissions)}
}

func (s *MemoryUserStore) GetUserPermissions(ctx context.Context, userID string) (*UserPermissions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	up, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	cop := *up
	return &cop, nil
}

func (s *MemoryUserStore) SaveUserPermissions(ctx context.Context, up *UserPermissions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if up.UpdatedAt.IsZero() {
		up.UpdatedAt = time.Now()
	}
	cop := *up
	s.users[up.UserID] = &cop
	return nil
}

func (s *MemoryUserStore) DeleteUserPermissions(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// MemoryRoleStore holds roles in a map.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*Role)}
}

func (s *MemoryRoleStore) CreateRole(ctx context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) UpdateRole(ctx context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
	return nil
}

func (s *MemoryRoleStore) GetRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (s *MemoryRoleStore) ListRoles(ctx context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

// MemoryGroupStore holds permission groups in a map.
type MemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[string]*PermissionGroup
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[string]*PermissionGroup)}
}

func (s *MemoryGroupStore) CreateGroup(ctx context.Context, g *PermissionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryGroupStore) UpdateGroup(ctx context.Context, g *PermissionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryGroupStore) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	return nil
}

func (s *MemoryGroupStore) GetGroup(ctx context.Context, id string) (*PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	return g, nil
}

func (s *MemoryGroupStore) ListGroups(ctx context.Context) ([]*PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PermissionGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out, nil
}
