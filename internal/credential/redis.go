package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"custoda/pkg/platform/sentinel"
)

const (
	credOwnerPrefix = "cred:owner:" // hash of credentialID -> payload per owner
	credIndexPrefix = "cred:index:" // credentialID -> ownerRef
)

// RedisStore is a Redis-backed credential store. Credentials live in a hash
// per owner so List is a single HGETALL and Revoke a targeted HDEL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Provision(ctx context.Context, ownerID string) (string, error) {
	ref := "cred-" + ownerID
	if err := s.client.SAdd(ctx, "cred:owners", ref).Err(); err != nil {
		return "", fmt.Errorf("provision credential store: %w", sentinel.ErrUnavailable)
	}
	return ref, nil
}

func (s *RedisStore) Issue(ctx context.Context, ownerRef string, payload []byte) (string, error) {
	known, err := s.client.SIsMember(ctx, "cred:owners", ownerRef).Result()
	if err != nil {
		return "", fmt.Errorf("issue credential: %w", sentinel.ErrUnavailable)
	}
	if !known {
		return "", sentinel.ErrNotFound
	}
	id := uuid.NewString()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, credOwnerPrefix+ownerRef, id, payload)
	pipe.Set(ctx, credIndexPrefix+id, ownerRef, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("issue credential: %w", sentinel.ErrUnavailable)
	}
	return id, nil
}

func (s *RedisStore) Revoke(ctx context.Context, credentialID string) error {
	ownerRef, err := s.client.Get(ctx, credIndexPrefix+credentialID).Result()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("revoke credential: %w", sentinel.ErrUnavailable)
	}
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, credOwnerPrefix+ownerRef, credentialID)
	pipe.Del(ctx, credIndexPrefix+credentialID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke credential: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, ownerRef string) ([]Credential, error) {
	known, err := s.client.SIsMember(ctx, "cred:owners", ownerRef).Result()
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", sentinel.ErrUnavailable)
	}
	if !known {
		return nil, sentinel.ErrNotFound
	}
	entries, err := s.client.HGetAll(ctx, credOwnerPrefix+ownerRef).Result()
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", sentinel.ErrUnavailable)
	}
	out := make([]Credential, 0, len(entries))
	for id, payload := range entries {
		out = append(out, Credential{ID: id, Payload: []byte(payload)})
	}
	return out, nil
}
