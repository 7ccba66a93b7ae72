package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/dataguard"
)

// RedisUserStore keeps per-user assignments in Redis sets so multiple engine
// processes share one assignment source. Keys:
//
//	dg:user:{id}:roles   set of role ids
//	dg:user:{id}:groups  set of group ids
//	dg:user:{id}:perms   set of direct permission tokens
//	dg:user:{id}:meta    hash with updated_at (RFC3339); also the existence marker
type RedisUserStore struct {
	client *redis.Client
	prefix string
}

func NewRedisUserStore(client *redis.Client) *RedisUserStore {
	return &RedisUserStore{client: client, prefix: "dg:user:"}
}

func (r *RedisUserStore) key(userID, suffix string) string {
	return r.prefix + userID + ":" + suffix
}

func (r *RedisUserStore) GetUserPermissions(ctx context.Context, userID string) (*dataguard.UserPermissions, error) {
	exists, err := r.client.Exists(ctx, r.key(userID, "meta")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	rolesCmd := pipe.SMembers(ctx, r.key(userID, "roles"))
	groupsCmd := pipe.SMembers(ctx, r.key(userID, "groups"))
	permsCmd := pipe.SMembers(ctx, r.key(userID, "perms"))
	metaCmd := pipe.HGet(ctx, r.key(userID, "meta"), "updated_at")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis fetch user %s: %w", userID, err)
	}

	up := &dataguard.UserPermissions{
		UserID:   userID,
		RoleIDs:  rolesCmd.Val(),
		GroupIDs: groupsCmd.Val(),
	}
	for _, p := range permsCmd.Val() {
		up.DirectPermissions = append(up.DirectPermissions, dataguard.Permission(p))
	}
	if raw, err := metaCmd.Result(); err == nil {
		if ts, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			up.UpdatedAt = ts
		}
	}
	return up, nil
}

func (r *RedisUserStore) SaveUserPermissions(ctx context.Context, up *dataguard.UserPermissions) error {
	if up.UpdatedAt.IsZero() {
		up.UpdatedAt = time.Now()
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(up.UserID, "roles"), r.key(up.UserID, "groups"), r.key(up.UserID, "perms"))
	if len(up.RoleIDs) > 0 {
		pipe.SAdd(ctx, r.key(up.UserID, "roles"), toAny(up.RoleIDs)...)
	}
	if len(up.GroupIDs) > 0 {
		pipe.SAdd(ctx, r.key(up.UserID, "groups"), toAny(up.GroupIDs)...)
	}
	if len(up.DirectPermissions) > 0 {
		perms := make([]any, 0, len(up.DirectPermissions))
		for _, p := range up.DirectPermissions {
			perms = append(perms, string(p))
		}
		pipe.SAdd(ctx, r.key(up.UserID, "perms"), perms...)
	}
	pipe.HSet(ctx, r.key(up.UserID, "meta"), "updated_at", up.UpdatedAt.Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save user %s: %w", up.UserID, err)
	}
	return nil
}

func (r *RedisUserStore) DeleteUserPermissions(ctx context.Context, userID string) error {
	err := r.client.Del(ctx,
		r.key(userID, "roles"),
		r.key(userID, "groups"),
		r.key(userID, "perms"),
		r.key(userID, "meta"),
	).Err()
	if err != nil {
		return fmt.Errorf("redis delete user %s: %w", userID, err)
	}
	return nil
}

func toAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
