package dataguard

import (
	"sort"
	"sync"
)

// compiledRowRule is a RowAccessControl with every condition precompiled.
type compiledRowRule struct {
	perms       []Permission
	conds       []compiledCondition
	description string
}

// AccessPolicyStore holds the active DataAccessPolicy set and maintains a
// per-resource index of field and row rules, rebuilt whenever a policy is
// added, replaced or removed. Policies are data loaded at startup and may be
// swapped at runtime by id.
type AccessPolicyStore struct {
	mu         sync.RWMutex
	policies   map[string]*DataAccessPolicy
	fieldIndex map[string][]FieldAccessControl
	rowIndex   map[string][]compiledRowRule
}

func NewAccessPolicyStore() *AccessPolicyStore {
	return &AccessPolicyStore{
		policies:   make(map[string]*DataAccessPolicy),
		fieldIndex: make(map[string][]FieldAccessControl),
		rowIndex:   make(map[string][]compiledRowRule),
	}
}

// SetPolicy adds the policy or replaces an existing one with the same id.
func (s *AccessPolicyStore) SetPolicy(p *DataAccessPolicy) {
	if p == nil || p.ID == "" {
		return
	}
	s.mu.Lock()
	s.policies[p.ID] = p
	s.rebuild()
	s.mu.Unlock()
}

// RemovePolicy drops a policy by id.
func (s *AccessPolicyStore) RemovePolicy(id string) {
	s.mu.Lock()
	delete(s.policies, id)
	s.rebuild()
	s.mu.Unlock()
}

// GetPolicy returns the policy with the given id, or nil.
func (s *AccessPolicyStore) GetPolicy(id string) *DataAccessPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies[id]
}

// ListPolicies returns all policies ordered by id.
func (s *AccessPolicyStore) ListPolicies() []*DataAccessPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*DataAccessPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// rebuild recomputes the per-resource rule indexes from active policies.
// Caller holds the write lock. Policy iteration order is made deterministic
// so rule evaluation order is stable across rebuilds.
func (s *AccessPolicyStore) rebuild() {
	ids := make([]string, 0, len(s.policies))
	for id := range s.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fieldIndex := make(map[string][]FieldAccessControl)
	rowIndex := make(map[string][]compiledRowRule)
	for _, id := range ids {
		p := s.policies[id]
		if !p.IsActive {
			continue
		}
		for _, fr := range p.FieldRules {
			fieldIndex[fr.Resource] = append(fieldIndex[fr.Resource], fr)
		}
		for _, rr := range p.RowRules {
			compiled := compiledRowRule{
				perms:       rr.RequiredPermissions,
				description: rr.Description,
				conds:       make([]compiledCondition, 0, len(rr.Conditions)),
			}
			for _, c := range rr.Conditions {
				compiled.conds = append(compiled.conds, compileCondition(c))
			}
			rowIndex[rr.Resource] = append(rowIndex[rr.Resource], compiled)
		}
	}
	s.fieldIndex = fieldIndex
	s.rowIndex = rowIndex
}

// FieldRulesFor returns the field rules registered for a resource across all
// active policies.
func (s *AccessPolicyStore) FieldRulesFor(resource string) []FieldAccessControl {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fieldIndex[resource]
}

// rowRulesFor returns the compiled row rules for a resource.
func (s *AccessPolicyStore) rowRulesFor(resource string) []compiledRowRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowIndex[resource]
}
