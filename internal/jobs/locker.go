package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shopcalls/pkg/logger"
	"shopcalls/pkg/utils"
)

// Locker guards a run across processes. ok is false when another process holds it.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

const (
	DefaultLockKey = "shopcalls:lock:transcription"
	defaultLockTTL = 2 * time.Minute
)

// RedisLocker is an owned Redis lock. The holder renews the lease every ttl/3
// while the run is in progress, so the TTL only matters when the holder dies.
type RedisLocker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, l.key, token, l.ttl)
	if err != nil || !ok {
		return nil, ok, err
	}

	log := logger.From(ctx).With("lock", l.key)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(log, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// the run context may already be canceled here
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := utils.ReleaseLock(ctx, l.rdb, l.key, token); err != nil {
				log.Warn("lock release failed", "err", err)
			}
		})
	}, true, nil
}

func (l *RedisLocker) keepAlive(log *slog.Logger, token string, stop <-chan struct{}) {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			held, err := utils.RefreshLock(ctx, l.rdb, l.key, token, l.ttl)
			cancel()
			switch {
			case err != nil:
				log.Warn("lock refresh failed", "err", err)
			case !held:
				log.Warn("lock lost, another process may start a run")
				return
			}
		}
	}
}
