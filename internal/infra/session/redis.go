package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/georetry/internal/core/domain"
)

// defaultPartitionField stores the token of requests without a partition key.
const defaultPartitionField = "-"

// mergeScript writes ARGV[2] into field ARGV[1] unless the stored token has a
// higher LSN. ARGV[3] is the LSN of the new token ("" if it did not parse),
// ARGV[4] the TTL in milliseconds.
var mergeScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
local nextLsn = tonumber(ARGV[3])
if cur and nextLsn then
	local curLsn = tonumber(string.match(cur, '#(%-?%d+)$'))
	if curLsn and curLsn > nextLsn then
		return 0
	end
elseif cur and not nextLsn then
	if string.match(cur, '#(%-?%d+)$') then
		return 0
	end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local ttl = tonumber(ARGV[4])
if ttl and ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// RedisStore keeps session tokens in one hash per container identity, so all
// partitions of an identity can be dropped with a single DEL.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id domain.ContainerIdentity) string {
	return fmt.Sprintf("session:{%s}", id)
}

func partitionField(pk string) string {
	if pk == "" {
		return defaultPartitionField
	}
	return pk
}

func (s *RedisStore) Get(ctx context.Context, id domain.ContainerIdentity, partitionKey string) (string, error) {
	token, err := s.rdb.HGet(ctx, sessionKey(id), partitionField(partitionKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("hget session %s: %w", id, err)
	}
	return token, nil
}

func (s *RedisStore) Set(ctx context.Context, id domain.ContainerIdentity, partitionKey, token string) error {
	if id.IsZero() || token == "" {
		return nil
	}
	lsn := ""
	if t, err := ParseToken(token); err == nil {
		lsn = strconv.FormatInt(t.LSN, 10)
	}
	err := mergeScript.Run(ctx, s.rdb,
		[]string{sessionKey(id)},
		partitionField(partitionKey), token, lsn, s.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("merge session %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, id domain.ContainerIdentity, partitionKey string) error {
	var err error
	if partitionKey == "" {
		err = s.rdb.Del(ctx, sessionKey(id)).Err()
	} else {
		err = s.rdb.HDel(ctx, sessionKey(id), partitionField(partitionKey)).Err()
	}
	if err != nil {
		return fmt.Errorf("clear session %s: %w", id, err)
	}
	return nil
}
