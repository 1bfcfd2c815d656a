package vault

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"custoda/pkg/platform/sentinel"
)

const (
	ownerKeyPrefix      = "vault:owner:"
	collectionKeyFormat = "vault:%s:%s"
)

// RedisVault is a Redis-backed vault. Payloads for a collection live in a
// list so write order is preserved; the owner marker key makes Provision
// idempotent and lets Read distinguish "unknown owner" from "empty".
type RedisVault struct {
	client *redis.Client
}

func NewRedisVault(client *redis.Client) *RedisVault {
	return &RedisVault{client: client}
}

func (v *RedisVault) Provision(ctx context.Context, ownerID string) (string, error) {
	ref := "vault-" + ownerID
	if err := v.client.Set(ctx, ownerKeyPrefix+ref, "1", 0).Err(); err != nil {
		return "", fmt.Errorf("provision vault: %w", sentinel.ErrUnavailable)
	}
	return ref, nil
}

func (v *RedisVault) Write(ctx context.Context, ownerRef, collectionKey string, payload []byte) error {
	exists, err := v.client.Exists(ctx, ownerKeyPrefix+ownerRef).Result()
	if err != nil {
		return fmt.Errorf("vault write: %w", sentinel.ErrUnavailable)
	}
	if exists == 0 {
		return sentinel.ErrNotFound
	}
	key := fmt.Sprintf(collectionKeyFormat, ownerRef, collectionKey)
	if err := v.client.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("vault write: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (v *RedisVault) Read(ctx context.Context, ownerRef, collectionKey string) ([][]byte, error) {
	exists, err := v.client.Exists(ctx, ownerKeyPrefix+ownerRef).Result()
	if err != nil {
		return nil, fmt.Errorf("vault read: %w", sentinel.ErrUnavailable)
	}
	if exists == 0 {
		return nil, sentinel.ErrNotFound
	}
	key := fmt.Sprintf(collectionKeyFormat, ownerRef, collectionKey)
	values, err := v.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("vault read: %w", sentinel.ErrUnavailable)
	}
	out := make([][]byte, len(values))
	for i, s := range values {
		out[i] = []byte(s)
	}
	return out, nil
}
