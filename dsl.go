package dataguard

import (
	"fmt"
	"strconv"
	"strings"
)

// DSL Syntax (one statement per line, '#' starts a comment):
//
//	role <id> "<name>" perms:<p1,p2> [system]
//	group <id> "<name>" [perms:<p1,p2>] [parents:<g1,g2>]
//	user <id> [roles:<r1,r2>] [groups:<g1,g2>] [perms:<p1,p2>]
//	policy <id> "<name>" [inactive]
//	field <resource> <field> require:<p1,p2> [mask:<strategy>:<datatype>] [exempt:<p1,p2>]
//	row <resource> [require:<p1,p2>] [where:<field>:<op>:<value>&...] ["<desc>"]
//	masking <datatype> <strategy> [exempt:<p1,p2>]
//	engine <key>=<value> ...
//
// field and row statements attach to the most recent policy statement.

type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser {
	return &DSLParser{}
}

func (p *DSLParser) Parse(data []byte) (*Config, error) {
	cfg := &Config{Version: 1}
	var cur *DataAccessPolicy

	p.line = 0
	for _, raw := range strings.Split(string(data), "\n") {
		p.line++
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := splitQuoted(line)
		if len(tokens) == 0 {
			continue
		}
		var err error
		switch tokens[0] {
		case "role":
			err = p.parseRole(cfg, tokens[1:])
		case "group":
			err = p.parseGroup(cfg, tokens[1:])
		case "user":
			err = p.parseUser(cfg, tokens[1:])
		case "policy":
			cur, err = p.parsePolicy(cfg, tokens[1:])
		case "field":
			err = p.parseField(cur, tokens[1:])
		case "row":
			err = p.parseRow(cur, tokens[1:])
		case "masking":
			err = p.parseMasking(cfg, tokens[1:])
		case "engine":
			err = p.parseEngine(cfg, tokens[1:])
		default:
			err = fmt.Errorf("unknown statement %q", tokens[0])
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	return cfg, nil
}

func (p *DSLParser) parseRole(cfg *Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("role needs id and name")
	}
	r := &Role{ID: args[0], Name: args[1]}
	for _, arg := range args[2:] {
		switch {
		case arg == "system":
			r.IsSystem = true
		case strings.HasPrefix(arg, "perms:"):
			r.Permissions = permList(arg[len("perms:"):])
		default:
			return fmt.Errorf("role %s: unknown attribute %q", r.ID, arg)
		}
	}
	cfg.Roles = append(cfg.Roles, r)
	return nil
}

func (p *DSLParser) parseGroup(cfg *Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("group needs id and name")
	}
	g := &PermissionGroup{ID: args[0], Name: args[1]}
	for _, arg := range args[2:] {
		switch {
		case strings.HasPrefix(arg, "perms:"):
			g.Permissions = permList(arg[len("perms:"):])
		case strings.HasPrefix(arg, "parents:"):
			g.ParentIDs = csv(arg[len("parents:"):])
		default:
			return fmt.Errorf("group %s: unknown attribute %q", g.ID, arg)
		}
	}
	cfg.Groups = append(cfg.Groups, g)
	return nil
}

func (p *DSLParser) parseUser(cfg *Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("user needs an id")
	}
	u := &UserPermissions{UserID: args[0]}
	for _, arg := range args[1:] {
		switch {
		case strings.HasPrefix(arg, "roles:"):
			u.RoleIDs = csv(arg[len("roles:"):])
		case strings.HasPrefix(arg, "groups:"):
			u.GroupIDs = csv(arg[len("groups:"):])
		case strings.HasPrefix(arg, "perms:"):
			u.DirectPermissions = permList(arg[len("perms:"):])
		default:
			return fmt.Errorf("user %s: unknown attribute %q", u.UserID, arg)
		}
	}
	cfg.Users = append(cfg.Users, u)
	return nil
}

func (p *DSLParser) parsePolicy(cfg *Config, args []string) (*DataAccessPolicy, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("policy needs id and name")
	}
	pol := &DataAccessPolicy{ID: args[0], Name: args[1], IsActive: true}
	for _, arg := range args[2:] {
		if arg == "inactive" {
			pol.IsActive = false
		} else {
			return nil, fmt.Errorf("policy %s: unknown attribute %q", pol.ID, arg)
		}
	}
	cfg.Policies = append(cfg.Policies, pol)
	return pol, nil
}

func (p *DSLParser) parseField(cur *DataAccessPolicy, args []string) error {
	if cur == nil {
		return fmt.Errorf("field statement outside a policy")
	}
	if len(args) < 3 {
		return fmt.Errorf("field needs resource, field and require:")
	}
	fr := FieldAccessControl{Resource: args[0], Field: args[1]}
	var mask *MaskingRule
	for _, arg := range args[2:] {
		switch {
		case strings.HasPrefix(arg, "require:"):
			fr.RequiredPermissions = permList(arg[len("require:"):])
		case strings.HasPrefix(arg, "mask:"):
			parts := strings.SplitN(arg[len("mask:"):], ":", 2)
			if len(parts) != 2 {
				return fmt.Errorf("mask needs <strategy>:<datatype>")
			}
			mask = &MaskingRule{Strategy: MaskStrategy(parts[0]), DataType: parts[1]}
		case strings.HasPrefix(arg, "exempt:"):
			if mask == nil {
				return fmt.Errorf("exempt: requires a preceding mask:")
			}
			mask.ExemptPermissions = permList(arg[len("exempt:"):])
		default:
			return fmt.Errorf("field %s: unknown attribute %q", fr.Field, arg)
		}
	}
	if len(fr.RequiredPermissions) == 0 {
		return fmt.Errorf("field %s: require: is mandatory", fr.Field)
	}
	fr.Masking = mask
	cur.FieldRules = append(cur.FieldRules, fr)
	return nil
}

func (p *DSLParser) parseRow(cur *DataAccessPolicy, args []string) error {
	if cur == nil {
		return fmt.Errorf("row statement outside a policy")
	}
	if len(args) < 1 {
		return fmt.Errorf("row needs a resource")
	}
	rr := RowAccessControl{Resource: args[0]}
	for _, arg := range args[1:] {
		switch {
		case strings.HasPrefix(arg, "require:"):
			rr.RequiredPermissions = permList(arg[len("require:"):])
		case strings.HasPrefix(arg, "where:"):
			for _, clause := range strings.Split(arg[len("where:"):], "&") {
				parts := strings.SplitN(clause, ":", 3)
				if len(parts) != 3 {
					return fmt.Errorf("where clause %q needs <field>:<op>:<value>", clause)
				}
				cond := RowCondition{Field: parts[0], Operator: Operator(parts[1]), Value: parts[2]}
				if !validOperator(cond.Operator) {
					return fmt.Errorf("where clause %q: unknown operator %q", clause, parts[1])
				}
				rr.Conditions = append(rr.Conditions, cond)
			}
		default:
			// a bare trailing token is the human-readable description
			rr.Description = arg
		}
	}
	cur.RowRules = append(cur.RowRules, rr)
	return nil
}

func (p *DSLParser) parseMasking(cfg *Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("masking needs datatype and strategy")
	}
	m := &MaskingRule{DataType: args[0], Strategy: MaskStrategy(args[1])}
	for _, arg := range args[2:] {
		if strings.HasPrefix(arg, "exempt:") {
			m.ExemptPermissions = permList(arg[len("exempt:"):])
		} else {
			return fmt.Errorf("masking %s: unknown attribute %q", m.DataType, arg)
		}
	}
	cfg.Masking = append(cfg.Masking, m)
	return nil
}

func (p *DSLParser) parseEngine(cfg *Config, args []string) error {
	for _, arg := range args {
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("engine setting %q needs key=value", arg)
		}
		n, err := strconv.ParseInt(kv[1], 10, 64)
		if err != nil {
			return fmt.Errorf("engine setting %s: %w", kv[0], err)
		}
		switch kv[0] {
		case "cache_ttl":
			cfg.Engine.CacheTTL = n
		case "notify_buffer":
			cfg.Engine.NotifyBuffer = int(n)
		case "ristretto_counters":
			cfg.Engine.RistrettoNumCounter = n
		case "ristretto_max_cost":
			cfg.Engine.RistrettoMaxCost = n
		case "ristretto_buffer":
			cfg.Engine.RistrettoBuffer = n
		default:
			return fmt.Errorf("unknown engine setting %q", kv[0])
		}
	}
	return nil
}

// ============================================================================
// ENCODER
// ============================================================================

type DSLEncoder struct {
	buf []byte
}

func NewDSLEncoder() *DSLEncoder {
	return &DSLEncoder{buf: make([]byte, 0, 4096)}
}

func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]

	for _, r := range cfg.Roles {
		e.stmt("role", r.ID, strconv.Quote(r.Name))
		if len(r.Permissions) > 0 {
			e.attr("perms", permCSV(r.Permissions))
		}
		if r.IsSystem {
			e.raw(" system")
		}
		e.nl()
	}
	for _, g := range cfg.Groups {
		e.stmt("group", g.ID, strconv.Quote(g.Name))
		if len(g.Permissions) > 0 {
			e.attr("perms", permCSV(g.Permissions))
		}
		if len(g.ParentIDs) > 0 {
			e.attr("parents", strings.Join(g.ParentIDs, ","))
		}
		e.nl()
	}
	for _, u := range cfg.Users {
		e.stmt("user", u.UserID)
		if len(u.RoleIDs) > 0 {
			e.attr("roles", strings.Join(u.RoleIDs, ","))
		}
		if len(u.GroupIDs) > 0 {
			e.attr("groups", strings.Join(u.GroupIDs, ","))
		}
		if len(u.DirectPermissions) > 0 {
			e.attr("perms", permCSV(u.DirectPermissions))
		}
		e.nl()
	}
	for _, pol := range cfg.Policies {
		e.stmt("policy", pol.ID, strconv.Quote(pol.Name))
		if !pol.IsActive {
			e.raw(" inactive")
		}
		e.nl()
		for _, fr := range pol.FieldRules {
			e.stmt("field", fr.Resource, fr.Field)
			e.attr("require", permCSV(fr.RequiredPermissions))
			if fr.Masking != nil {
				e.attr("mask", string(fr.Masking.Strategy)+":"+fr.Masking.DataType)
				if len(fr.Masking.ExemptPermissions) > 0 {
					e.attr("exempt", permCSV(fr.Masking.ExemptPermissions))
				}
			}
			e.nl()
		}
		for _, rr := range pol.RowRules {
			e.stmt("row", rr.Resource)
			if len(rr.RequiredPermissions) > 0 {
				e.attr("require", permCSV(rr.RequiredPermissions))
			}
			if len(rr.Conditions) > 0 {
				clauses := make([]string, 0, len(rr.Conditions))
				for _, c := range rr.Conditions {
					clauses = append(clauses, c.Field+":"+string(c.Operator)+":"+coerceString(c.Value))
				}
				e.attr("where", strings.Join(clauses, "&"))
			}
			if rr.Description != "" {
				e.raw(" " + strconv.Quote(rr.Description))
			}
			e.nl()
		}
	}
	for _, m := range cfg.Masking {
		e.stmt("masking", m.DataType, string(m.Strategy))
		if len(m.ExemptPermissions) > 0 {
			e.attr("exempt", permCSV(m.ExemptPermissions))
		}
		e.nl()
	}
	if eng := cfg.Engine; eng != (EngineConfig{}) {
		e.raw("engine")
		if eng.CacheTTL > 0 {
			e.raw(" cache_ttl=" + strconv.FormatInt(eng.CacheTTL, 10))
		}
		if eng.NotifyBuffer > 0 {
			e.raw(" notify_buffer=" + strconv.Itoa(eng.NotifyBuffer))
		}
		if eng.RistrettoNumCounter > 0 {
			e.raw(" ristretto_counters=" + strconv.FormatInt(eng.RistrettoNumCounter, 10))
		}
		if eng.RistrettoMaxCost > 0 {
			e.raw(" ristretto_max_cost=" + strconv.FormatInt(eng.RistrettoMaxCost, 10))
		}
		if eng.RistrettoBuffer > 0 {
			e.raw(" ristretto_buffer=" + strconv.FormatInt(eng.RistrettoBuffer, 10))
		}
		e.nl()
	}
	return e.buf, nil
}

func (e *DSLEncoder) stmt(keyword string, args ...string) {
	e.buf = append(e.buf, keyword...)
	for _, a := range args {
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, a...)
	}
}

func (e *DSLEncoder) attr(key, value string) {
	e.buf = append(e.buf, ' ')
	e.buf = append(e.buf, key...)
	e.buf = append(e.buf, ':')
	e.buf = append(e.buf, value...)
}

func (e *DSLEncoder) raw(s string) {
	e.buf = append(e.buf, s...)
}

func (e *DSLEncoder) nl() {
	e.buf = append(e.buf, '\n')
}

// ============================================================================
// TOKEN HELPERS
// ============================================================================

// splitQuoted splits a line on spaces, keeping double-quoted spans as single
// unquoted tokens.
func splitQuoted(line string) []string {
	var tokens []string
	var b strings.Builder
	inQuote := false
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			if !inQuote {
				tokens = append(tokens, b.String())
				b.Reset()
			}
		case (r == ' ' || r == '\t') && !inQuote:
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func csv(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func permList(s string) []Permission {
	parts := csv(s)
	out := make([]Permission, 0, len(parts))
	for _, p := range parts {
		out = append(out, Permission(p))
	}
	return out
}

func permCSV(perms []Permission) string {
	parts := make([]string, 0, len(perms))
	for _, p := range perms {
		parts = append(parts, string(p))
	}
	return strings.Join(parts, ",")
}
