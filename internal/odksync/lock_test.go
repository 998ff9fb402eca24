package odksync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubLockRedis struct {
	values map[string]string
	evals  int
}

func (s *stubLockRedis) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := s.values[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	s.values[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (s *stubLockRedis) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	s.evals++
	cmd := redis.NewCmd(ctx)
	if s.values[keys[0]] == args[0].(string) {
		delete(s.values, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func TestRedisLocker(t *testing.T) {
	client := &stubLockRedis{values: map[string]string{}}
	locker := NewRedisLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "pinovara:sync:1:foto", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, "pinovara:sync:1:foto", time.Minute); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("esperava ErrSyncInProgress, veio %v", err)
	}

	// outra instância assumiu a chave após expirar: a liberação antiga não pode apagá-la
	client.values["pinovara:sync:1:foto"] = "outro-dono"
	release()
	if client.values["pinovara:sync:1:foto"] != "outro-dono" {
		t.Fatalf("liberação apagou trava de outro dono")
	}

	delete(client.values, "pinovara:sync:1:foto")
	release2, err := locker.Acquire(ctx, "pinovara:sync:1:foto", time.Minute)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	release2()
	if _, held := client.values["pinovara:sync:1:foto"]; held {
		t.Fatalf("trava deveria ter sido liberada")
	}
	if client.evals != 2 {
		t.Fatalf("evals = %d", client.evals)
	}
}
