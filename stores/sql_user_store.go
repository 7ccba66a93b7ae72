package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/dataguard"
)

// SQLUserStore persists per-user permission assignments in SQL (squealx)
type SQLUserStore struct {
	db *squealx.DB
}

func NewSQLUserStore(db *squealx.DB) *SQLUserStore {
	return &SQLUserStore{db: db}
}

func (s *SQLUserStore) GetUserPermissions(ctx context.Context, userID string) (*dataguard.UserPermissions, error) {
	q := `SELECT user_id, role_ids_json, group_ids_json, direct_permissions_json, updated_at FROM user_permissions WHERE user_id = :user_id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	var uid, rolesJSON, groupsJSON, permsJSON string
	var updatedRaw any
	if err := rows.Scan(&uid, &rolesJSON, &groupsJSON, &permsJSON, &updatedRaw); err != nil {
		return nil, err
	}
	up := &dataguard.UserPermissions{UserID: uid, UpdatedAt: parseFlexibleTime(updatedRaw)}
	if err := json.Unmarshal([]byte(rolesJSON), &up.RoleIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(groupsJSON), &up.GroupIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(permsJSON), &up.DirectPermissions); err != nil {
		return nil, err
	}
	return up, nil
}

func (s *SQLUserStore) SaveUserPermissions(ctx context.Context, up *dataguard.UserPermissions) error {
	roles, _ := json.Marshal(up.RoleIDs)
	groups, _ := json.Marshal(up.GroupIDs)
	perms, _ := json.Marshal(up.DirectPermissions)
	if up.UpdatedAt.IsZero() {
		up.UpdatedAt = time.Now()
	}
	q := `INSERT INTO user_permissions(user_id, role_ids_json, group_ids_json, direct_permissions_json, updated_at)
VALUES(:user_id, :role_ids_json, :group_ids_json, :direct_permissions_json, :updated_at)
ON CONFLICT(user_id) DO UPDATE SET role_ids_json=:role_ids_json, group_ids_json=:group_ids_json, direct_permissions_json=:direct_permissions_json, updated_at=:updated_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":                 up.UserID,
		"role_ids_json":           string(roles),
		"group_ids_json":          string(groups),
		"direct_permissions_json": string(perms),
		"updated_at":              up.UpdatedAt,
	})
	return err
}

func (s *SQLUserStore) DeleteUserPermissions(ctx context.Context, userID string) error {
	q := `DELETE FROM user_permissions WHERE user_id = :user_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID})
	return err
}
