package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

// refreshScript updates the hash only while the key exists, so an expired
// session is never recreated without a TTL.
var refreshScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'name', ARGV[1], 'avatar_url', ARGV[2], 'updated_at', ARGV[3])
return 1
`)

func sessionKey(identityID string) string {
	return "identity:session:" + identityID
}

// SessionCache stores the current session of each identity as a redis hash.
type SessionCache struct {
	rdb *redis.Client
}

func NewSessionCache(rdb *redis.Client) *SessionCache {
	return &SessionCache{rdb: rdb}
}

var _ application.SessionCache = (*SessionCache)(nil)

// Put writes the session. A non-positive ttl falls back to the access token
// lifetime; the key always expires.
func (c *SessionCache) Put(ctx context.Context, s application.Session, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = helpers.AccessTokenTTL
	}
	key := sessionKey(s.IdentityID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"identity_id": s.IdentityID,
		"email":       s.Email,
		"name":        s.Name,
		"role":        s.Role,
		"avatar_url":  s.AvatarURL,
		"jti":         s.TokenID,
		"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *SessionCache) Refresh(ctx context.Context, identityID, name, avatarURL string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return refreshScript.Run(ctx, c.rdb, []string{sessionKey(identityID)}, name, avatarURL, now).Err()
}

// Get returns nil without error when no session is cached.
func (c *SessionCache) Get(ctx context.Context, identityID string) (*application.Session, error) {
	data, err := c.rdb.HGetAll(ctx, sessionKey(identityID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &application.Session{
		IdentityID: data["identity_id"],
		Email:      data["email"],
		Name:       data["name"],
		Role:       data["role"],
		AvatarURL:  data["avatar_url"],
		TokenID:    data["jti"],
	}, nil
}

func (c *SessionCache) Delete(ctx context.Context, identityID string) error {
	return c.rdb.Del(ctx, sessionKey(identityID)).Err()
}
