package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/dataguard"
)

// SQLRoleStore persists roles in SQL (squealx)
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *dataguard.Role) error {
	perms, _ := json.Marshal(r.Permissions)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	q := `INSERT INTO roles(id, name, description, permissions_json, is_system, created_at) VALUES(:id, :name, :description, :permissions_json, :is_system, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               r.ID,
		"name":             r.Name,
		"description":      r.Description,
		"permissions_json": string(perms),
		"is_system":        boolToInt(r.IsSystem),
		"created_at":       r.CreatedAt,
	})
	return err
}

func (s *SQLRoleStore) UpdateRole(ctx context.Context, r *dataguard.Role) error {
	perms, _ := json.Marshal(r.Permissions)
	q := `UPDATE roles SET name=:name, description=:description, permissions_json=:permissions_json, is_system=:is_system WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               r.ID,
		"name":             r.Name,
		"description":      r.Description,
		"permissions_json": string(perms),
		"is_system":        boolToInt(r.IsSystem),
	})
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string) error {
	q := `DELETE FROM roles WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*dataguard.Role, error) {
	q := `SELECT id, name, description, permissions_json, is_system, created_at FROM roles WHERE id = :id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	return scanRole(rows)
}

func (s *SQLRoleStore) ListRoles(ctx context.Context) ([]*dataguard.Role, error) {
	q := `SELECT id, name, description, permissions_json, is_system, created_at FROM roles ORDER BY id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*dataguard.Role, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(rows rowScanner) (*dataguard.Role, error) {
	var id, name, description, permsJSON string
	var isSystem int
	var createdRaw any
	if err := rows.Scan(&id, &name, &description, &permsJSON, &isSystem, &createdRaw); err != nil {
		return nil, err
	}
	r := &dataguard.Role{
		ID:          id,
		Name:        name,
		Description: description,
		IsSystem:    isSystem != 0,
		CreatedAt:   parseFlexibleTime(createdRaw),
	}
	if err := json.Unmarshal([]byte(permsJSON), &r.Permissions); err != nil {
		return nil, err
	}
	return r, nil
}
