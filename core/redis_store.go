package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTokenKeyPrefix = "card-token:"

// RedisTokenStore keeps each record under "<prefix>tok:<token>" with an
// id index at "<prefix>id:<uuid>". Both keys share the record's TTL.
type RedisTokenStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisTokenStore(client *redis.Client, keyPrefix string) *RedisTokenStore {
	if keyPrefix == "" {
		keyPrefix = defaultTokenKeyPrefix
	}
	return &RedisTokenStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisTokenStore) tokenKey(token string) string {
	return fmt.Sprintf("%stok:%s", s.keyPrefix, token)
}

func (s *RedisTokenStore) idKey(id uuid.UUID) string {
	return fmt.Sprintf("%sid:%s", s.keyPrefix, id.String())
}

func (s *RedisTokenStore) Save(ctx context.Context, t CardToken, ttl time.Duration) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(t.Token), raw, ttl)
		pipe.Set(ctx, s.idKey(t.ID), t.Token, ttl)
		return nil
	})
	return err
}

func (s *RedisTokenStore) GetByToken(ctx context.Context, token string) (*CardToken, error) {
	val, err := s.client.Get(ctx, s.tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t CardToken
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *RedisTokenStore) Get(ctx context.Context, id uuid.UUID) (*CardToken, error) {
	token, err := s.client.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetByToken(ctx, token)
}

var deactivateScript = redis.NewScript(`
local token = redis.call("GET", KEYS[1])
if not token then return 0 end
local key = ARGV[1] .. token
local val = redis.call("GET", key)
if not val then return 0 end
local obj = cjson.decode(val)
obj.is_active = false
local ttl = redis.call("PTTL", key)
if ttl and ttl > 0 then
  redis.call("SET", key, cjson.encode(obj), "PX", ttl)
else
  redis.call("SET", key, cjson.encode(obj))
end
return 1
`)

func (s *RedisTokenStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := deactivateScript.Run(ctx, s.client, []string{s.idKey(id)}, s.keyPrefix+"tok:").Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}
