package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/dataguard"
)

// SQLGroupStore persists permission groups in SQL (squealx)
type SQLGroupStore struct {
	db *squealx.DB
}

func NewSQLGroupStore(db *squealx.DB) *SQLGroupStore {
	return &SQLGroupStore{db: db}
}

func (s *SQLGroupStore) CreateGroup(ctx context.Context, g *dataguard.PermissionGroup) error {
	perms, _ := json.Marshal(g.Permissions)
	parents, _ := json.Marshal(g.ParentIDs)
	q := `INSERT INTO permission_groups(id, name, description, permissions_json, parent_ids_json) VALUES(:id, :name, :description, :permissions_json, :parent_ids_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               g.ID,
		"name":             g.Name,
		"description":      g.Description,
		"permissions_json": string(perms),
		"parent_ids_json":  string(parents),
	})
	return err
}

func (s *SQLGroupStore) UpdateGroup(ctx context.Context, g *dataguard.PermissionGroup) error {
	perms, _ := json.Marshal(g.Permissions)
	parents, _ := json.Marshal(g.ParentIDs)
	q := `UPDATE permission_groups SET name=:name, description=:description, permissions_json=:permissions_json, parent_ids_json=:parent_ids_json WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               g.ID,
		"name":             g.Name,
		"description":      g.Description,
		"permissions_json": string(perms),
		"parent_ids_json":  string(parents),
	})
	return err
}

func (s *SQLGroupStore) DeleteGroup(ctx context.Context, id string) error {
	q := `DELETE FROM permission_groups WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLGroupStore) GetGroup(ctx context.Context, id string) (*dataguard.PermissionGroup, error) {
	q := `SELECT id, name, description, permissions_json, parent_ids_json FROM permission_groups WHERE id = :id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	return scanGroup(rows)
}

func (s *SQLGroupStore) ListGroups(ctx context.Context) ([]*dataguard.PermissionGroup, error) {
	q := `SELECT id, name, description, permissions_json, parent_ids_json FROM permission_groups ORDER BY id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*dataguard.PermissionGroup, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func scanGroup(rows rowScanner) (*dataguard.PermissionGroup, error) {
	var id, name, description, permsJSON, parentsJSON string
	if err := rows.Scan(&id, &name, &description, &permsJSON, &parentsJSON); err != nil {
		return nil, err
	}
	g := &dataguard.PermissionGroup{ID: id, Name: name, Description: description}
	if err := json.Unmarshal([]byte(permsJSON), &g.Permissions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(parentsJSON), &g.ParentIDs); err != nil {
		return nil, err
	}
	return g, nil
}
