package dataguard

import (
	"context"
	"strings"
	"testing"
)

const sampleYAML = `version: 1
roles:
  - id: viewer
    name: Report Viewer
    permissions: ["report:read", "goal:read"]
  - id: finance-admin
    name: Finance Admin
    permissions: ["financial:manage"]
groups:
  - id: finance
    name: Finance Team
    permissions: ["financial:read"]
users:
  - user_id: alice
    role_ids: [viewer]
    group_ids: [finance]
policies:
  - id: financial-reports
    name: Financial report protection
    is_active: true
    field_rules:
      - resource: report
        field: revenue
        required_permissions: ["financial:read"]
        masking:
          data_type: account
          strategy: partial
          exempt_permissions: ["financial:manage"]
    row_rules:
      - resource: report
        required_permissions: ["report:read"]
        conditions:
          - field: department
            operator: eq
            value: "{user.department}"
masking:
  - data_type: phone
    strategy: partial
engine:
  cache_ttl_ms: 60000
`

func TestLoadYAML(t *testing.T) {
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.Roles) != 2 || cfg.Roles[0].ID != "viewer" {
		t.Fatalf("roles: %+v", cfg.Roles)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].RoleIDs[0] != "viewer" {
		t.Fatalf("users: %+v", cfg.Users)
	}
	pol := cfg.Policies[0]
	if len(pol.FieldRules) != 1 || pol.FieldRules[0].Masking.Strategy != MaskPartial {
		t.Fatalf("field rules: %+v", pol.FieldRules)
	}
	if pol.RowRules[0].Conditions[0].Value != "{user.department}" {
		t.Fatalf("row condition: %+v", pol.RowRules[0].Conditions)
	}
	if cfg.Engine.CacheTTL != 60000 {
		t.Fatalf("engine ttl: %d", cfg.Engine.CacheTTL)
	}
}

func TestConfigFormatRoundTrips(t *testing.T) {
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}

	jsonData, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	fromJSON, err := NewConfigLoader().LoadJSON(jsonData)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if len(fromJSON.Policies) != 1 || fromJSON.Policies[0].ID != "financial-reports" {
		t.Fatalf("json round trip lost policies: %+v", fromJSON.Policies)
	}

	yamlData, err := fromJSON.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	fromYAML, err := NewConfigLoader().LoadYAML(yamlData)
	if err != nil {
		t.Fatalf("reload yaml: %v", err)
	}
	if fromYAML.Roles[1].ID != "finance-admin" {
		t.Fatalf("yaml round trip lost roles: %+v", fromYAML.Roles)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty role id", func(c *Config) { c.Roles[0].ID = "" }, "empty id"},
		{"unknown parent group", func(c *Config) { c.Groups[0].ParentIDs = []string{"ghost"} }, "unknown parent group"},
		{"unknown user role", func(c *Config) { c.Users[0].RoleIDs = []string{"ghost"} }, "unknown role"},
		{"unknown operator", func(c *Config) { c.Policies[0].RowRules[0].Conditions[0].Operator = "matches" }, "unknown operator"},
		{"unknown strategy", func(c *Config) { c.Masking[0].Strategy = "rot13" }, "unknown strategy"},
		{"field rule without field", func(c *Config) { c.Policies[0].FieldRules[0].Field = "" }, "needs resource and field"},
	}
	for _, tc := range cases {
		cfg, err := NewConfigLoader().LoadYAML([]byte(sampleYAML))
		if err != nil {
			t.Fatalf("%s: load: %v", tc.name, err)
		}
		tc.mutate(cfg)
		err = cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q should mention %q", tc.name, err, tc.want)
		}
	}
}

func TestApplyConfigSeedsEngine(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(NewMemoryUserStore(), NewMemoryRoleStore(), NewMemoryGroupStore())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := eng.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	allowed, err := eng.HasPermission(ctx, "alice", "report:read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if !allowed {
		t.Fatalf("alice should hold report:read via the viewer role")
	}

	rows := []Record{
		{"id": 1, "department": "Sales", "revenue": "4410055"},
		{"id": 2, "department": "Engineering", "revenue": "9000000"},
	}
	out, err := eng.Process(ctx, "alice", "report", rows, Context{"user": map[string]any{"department": "Sales"}})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("row scope should keep only the Sales row, got %d", len(out))
	}
	// alice holds financial:read through the finance group, so the field
	// survives, but without financial:manage the value is partially masked
	if got := out[0]["revenue"]; got != "***0055" {
		t.Fatalf("revenue should be masked for alice, got %v", got)
	}
}

func TestApplyConfigRejectsInvalid(t *testing.T) {
	eng, err := NewEngine(NewMemoryUserStore(), NewMemoryRoleStore(), NewMemoryGroupStore())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cfg := &Config{Roles: []*Role{{ID: ""}}}
	if err := eng.ApplyConfig(context.Background(), cfg); err == nil {
		t.Fatalf("invalid config must be rejected before any store writes")
	}
}

func TestApplyConfigIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(NewMemoryUserStore(), NewMemoryRoleStore(), NewMemoryGroupStore())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := eng.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	cfg.Roles[0].Permissions = append(cfg.Roles[0].Permissions, "export:run")
	if err := eng.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	allowed, err := eng.HasPermission(ctx, "alice", "export:run")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if !allowed {
		t.Fatalf("re-applied role update should be visible after the cache flush")
	}
}

func TestDefaultPoliciesValidate(t *testing.T) {
	cfg := &Config{Version: 1, Policies: DefaultPolicies()}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("built-in policies must validate: %v", err)
	}
	if cfg.Policies[0].ID != "financial-data-protection" {
		t.Fatalf("unexpected default policy ids: %+v", cfg.Policies)
	}
}
