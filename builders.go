package dataguard

// Builders provide a fluent API for constructing policies, roles and groups
// in bootstrap code and tests.

// PolicyBuilder builds a DataAccessPolicy
type PolicyBuilder struct {
	p *DataAccessPolicy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &DataAccessPolicy{IsActive: true}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder { b.p.ID = id; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder { b.p.Name = n; return b }
func (b *PolicyBuilder) Description(d string) *PolicyBuilder { b.p.Description = d; return b }
func (b *PolicyBuilder) Active(active bool) *PolicyBuilder { b.p.IsActive = active; return b }

func (b *PolicyBuilder) FieldRule(resource, field string, required []Permission, masking *MaskingRule) *PolicyBuilder {
	b.p.FieldRules = append(b.p.FieldRules, FieldAccessControl{
		Field:               field,
		Resource:            resource,
		RequiredPermissions: required,
		Masking:             masking,
	})
	return b
}

func (b *PolicyBuilder) RowRule(resource string, required []Permission, description string, conditions ...RowCondition) *PolicyBuilder {
	b.p.RowRules = append(b.p.RowRules, RowAccessControl{
		Resource:            resource,
		RequiredPermissions: required,
		Conditions:          conditions,
		Description:         description,
	})
	return b
}

func (b *PolicyBuilder) Build() *DataAccessPolicy { return b.p }

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{}}
}

func (b *RoleBuilder) ID(id string) *RoleBuilder { b.r.ID = id; return b }
func (b *RoleBuilder) Name(n string) *RoleBuilder { b.r.Name = n; return b }
func (b *RoleBuilder) Description(d string) *RoleBuilder { b.r.Description = d; return b }
func (b *RoleBuilder) System() *RoleBuilder { b.r.IsSystem = true; return b }
func (b *RoleBuilder) Permissions(perms ...Permission) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, perms...)
	return b
}
func (b *RoleBuilder) Build() *Role { return b.r }

// GroupBuilder builds a PermissionGroup
type GroupBuilder struct {
	g *PermissionGroup
}

func NewGroupBuilder() *GroupBuilder {
	return &GroupBuilder{g: &PermissionGroup{}}
}

func (b *GroupBuilder) ID(id string) *GroupBuilder { b.g.ID = id; return b }
func (b *GroupBuilder) Name(n string) *GroupBuilder { b.g.Name = n; return b }
func (b *GroupBuilder) Description(d string) *GroupBuilder { b.g.Description = d; return b }
func (b *GroupBuilder) Permissions(perms ...Permission) *GroupBuilder {
	b.g.Permissions = append(b.g.Permissions, perms...)
	return b
}
func (b *GroupBuilder) Parents(ids ...string) *GroupBuilder {
	b.g.ParentIDs = append(b.g.ParentIDs, ids...)
	return b
}
func (b *GroupBuilder) Build() *PermissionGroup { return b.g }
