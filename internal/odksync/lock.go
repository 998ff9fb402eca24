package odksync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript só apaga a chave se ela ainda pertencer ao mesmo dono.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

type redisLockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisLocker implementa Locker com SET NX e expiração.
type RedisLocker struct {
	client redisLockClient
}

// NewRedisLocker cria o locker sobre o cliente Redis compartilhado.
func NewRedisLocker(client redisLockClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire obtém a trava ou devolve ErrSyncInProgress se outra execução a detém.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
			log.Warn().Err(err).Str("lock", key).Msg("odksync: falha ao liberar trava")
		}
	}, nil
}
