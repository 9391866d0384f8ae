package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "session:"

// RedisStore keeps JSON-encoded sessions in Redis under prefix+token.
// Keys carry no expiry.
type RedisStore struct {
	client   redis.Cmdable
	prefix   string
	clock    func() time.Time
	newToken func() (string, error)
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		clock:    time.Now,
		newToken: NewToken,
	}
}

func (s *RedisStore) Create(ctx context.Context, creds Credentials, user json.RawMessage) (string, error) {
	token, err := s.newToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(Session{
		Credentials: creds,
		User:        user,
		CreatedAt:   s.clock().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(token), payload, 0).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Session, bool, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return sess, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}
