package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as JSON documents that Redis expires at the
// session's ExpiresAt.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a Store writing keys under prefix + "session:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix + "session:"}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Create(ctx context.Context, session *Session) error {
	return s.write(ctx, session, "")
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Join(ErrInvalidSession, err)
	}
	if sess.IsExpired() {
		_ = s.client.Del(ctx, s.key(token)).Err()
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

func (s *RedisStore) Update(ctx context.Context, session *Session) error {
	return s.write(ctx, session, "XX")
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

// DeleteExpired is a no-op: Redis expires session keys itself.
func (s *RedisStore) DeleteExpired(ctx context.Context) error {
	return nil
}

func (s *RedisStore) write(ctx context.Context, session *Session, mode string) error {
	if session == nil || session.Token == "" {
		return ErrInvalidSession
	}
	if session.IsExpired() {
		return ErrSessionExpired
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	err = s.client.SetArgs(ctx, s.key(session.Token), data, redis.SetArgs{
		Mode:     mode,
		ExpireAt: session.ExpiresAt,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrSessionNotFound
	}
	return err
}
