package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/observability"
)

// releaseScript deletes the lock key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only while the key still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker shares office locks across processes through SET NX PX. While a lock is held
// its lease is extended every ttl/3, so a slow critical section keeps the key; ttl only bounds
// how long a crashed holder blocks the others.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a locker on client. ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{client: client, prefix: "campusdesk:queue:lock:", ttl: ttl, retry: 25 * time.Millisecond}
}

// NewRedisClient connects to addr and pings it, the way the worker services do on boot.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	var opt *redis.Options
	if u, err := redis.ParseURL(addr); err == nil {
		opt = u
	} else {
		opt = &redis.Options{Addr: addr, Password: password, DB: db}
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, common.Unavailable("redis ping", err)
	}
	return rdb, nil
}

func (l *RedisLocker) Lock(ctx context.Context, officeID string) (func(), error) {
	key := l.prefix + officeID
	token := uuid.NewString()
	start := time.Now()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, common.Unavailable("redis lock", err)
		}
		if ok {
			break
		}
		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("lock office %s: %w", officeID, ctx.Err())
		case <-t.C:
		}
	}
	observability.ObserveLockWait(time.Since(start))
	stop := keepAlive(max(l.ttl/3, time.Millisecond), func(ctx context.Context) (bool, error) {
		n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
		return n == 1, err
	}, func(err error) {
		common.L().Error("queue lock lease lost", zap.String("office", officeID), zap.Error(err))
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			// release on a fresh context so a cancelled request still frees the key
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				common.L().Warn("queue lock release failed", zap.String("office", officeID), zap.Error(err))
			}
		})
	}, nil
}

var errLeaseGone = errors.New("lock key expired or taken over")

// keepAlive calls extend every interval until stop is called. When extend reports the lease is
// gone, lost is called once and the loop ends. Transient errors are retried on the next tick.
func keepAlive(interval time.Duration, extend func(context.Context) (bool, error), lost func(error)) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			ok, err := extend(ctx)
			cancel()
			switch {
			case err != nil:
				common.L().Warn("queue lock lease refresh failed", zap.Error(err))
			case !ok:
				lost(errLeaseGone)
				return
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
