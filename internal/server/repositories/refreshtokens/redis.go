package refreshtokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// Redis layout (times in unix milliseconds):
//
//	<prefix>rt:<hash>     hash with the record fields, expires with the token
//	<prefix>rtid:<id>     token hash by record id
//	<prefix>rtf:<family>  set of token hashes in a family
const (
	fieldID         = "id"
	fieldFamilyID   = "family_id"
	fieldUserID     = "user_id"
	fieldTokenHash  = "token_hash"
	fieldCreatedAt  = "created_at"
	fieldExpiresAt  = "expires_at"
	fieldRevoked    = "revoked"
	fieldRevokedAt  = "revoked_at"
	fieldReplacedBy = "replaced_by"
)

// consumeScript revokes KEYS[1] if it is active at ARGV[1] and returns its
// fields as they were before, or nil.
var consumeScript = redis.NewScript(`
local k = KEYS[1]
if redis.call('EXISTS', k) == 0 then
	return false
end
local revoked = redis.call('HGET', k, 'revoked')
local exp = tonumber(redis.call('HGET', k, 'expires_at'))
if revoked == '1' or exp <= tonumber(ARGV[1]) then
	return false
end
local before = redis.call('HGETALL', k)
redis.call('HSET', k, 'revoked', '1', 'revoked_at', ARGV[1])
return before
`)

// revokeScript revokes KEYS[1] if present and active; returns 1 when it did.
var revokeScript = redis.NewScript(`
local k = KEYS[1]
if redis.call('HGET', k, 'revoked') == '0' then
	redis.call('HSET', k, 'revoked', '1', 'revoked_at', ARGV[1])
	return 1
end
return 0
`)

// RedisRepository keeps refresh tokens in Redis. Records expire on their own
// once ExpiresAt passes.
type RedisRepository struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisRepository(rdb redis.Cmdable, prefix string) *RedisRepository {
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisRepository) tokenKey(hash string) string { return r.prefix + "rt:" + hash }
func (r *RedisRepository) idKey(id string) string { return r.prefix + "rtid:" + id }
func (r *RedisRepository) familyKey(fam string) string { return r.prefix + "rtf:" + fam }

func (r *RedisRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	key := r.tokenKey(t.TokenHash)

	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			fieldID, t.ID,
			fieldFamilyID, t.FamilyID,
			fieldUserID, t.UserID,
			fieldTokenHash, t.TokenHash,
			fieldCreatedAt, t.CreatedAt.UnixMilli(),
			fieldExpiresAt, t.ExpiresAt.UnixMilli(),
			fieldRevoked, "0",
		)
		p.PExpireAt(ctx, key, t.ExpiresAt)
		p.Set(ctx, r.idKey(t.ID), t.TokenHash, 0)
		p.PExpireAt(ctx, r.idKey(t.ID), t.ExpiresAt)
		p.SAdd(ctx, r.familyKey(t.FamilyID), t.TokenHash)
		p.PExpireAt(ctx, r.familyKey(t.FamilyID), t.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error) {
	vals, err := consumeScript.Run(ctx, r.rdb, []string{r.tokenKey(tokenHash)}, now.UnixMilli()).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return decodeFlat(vals)
}

func (r *RedisRepository) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	fields, err := r.rdb.HGetAll(ctx, r.tokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, common.ErrorNotFound
	}
	return decode(fields)
}

func (r *RedisRepository) SetReplacement(ctx context.Context, id string, replacedBy string) error {
	hash, err := r.rdb.Get(ctx, r.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis error: %w", err)
	}
	if err := r.rdb.HSet(ctx, r.tokenKey(hash), fieldReplacedBy, replacedBy).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	if err := revokeScript.Run(ctx, r.rdb, []string{r.tokenKey(tokenHash)}, now.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	hashes, err := r.rdb.SMembers(ctx, r.familyKey(familyID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	var revoked int64
	for _, h := range hashes {
		n, err := revokeScript.Run(ctx, r.rdb, []string{r.tokenKey(h)}, now.UnixMilli()).Int64()
		if err != nil {
			return revoked, fmt.Errorf("redis error: %w", err)
		}
		revoked += n
	}
	return revoked, nil
}

func decodeFlat(vals []string) (*models.RefreshToken, error) {
	if len(vals)%2 != 0 {
		return nil, fmt.Errorf("redis error: odd field list")
	}
	fields := make(map[string]string, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		fields[vals[i]] = vals[i+1]
	}
	return decode(fields)
}

func decode(f map[string]string) (*models.RefreshToken, error) {
	t := &models.RefreshToken{
		ID:        f[fieldID],
		FamilyID:  f[fieldFamilyID],
		UserID:    f[fieldUserID],
		TokenHash: f[fieldTokenHash],
		Revoked:   f[fieldRevoked] == "1",
	}

	var err error
	if t.CreatedAt, err = parseMillis(f[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if t.ExpiresAt, err = parseMillis(f[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if v, ok := f[fieldRevokedAt]; ok {
		at, err := parseMillis(v)
		if err != nil {
			return nil, err
		}
		t.RevokedAt = &at
	}
	if v, ok := f[fieldReplacedBy]; ok {
		t.ReplacedBy = &v
	}
	return t, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis error: bad timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
