package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunLock keeps two runs of the same job from overlapping. Acquire returns
// ErrRunInProgress when the job is already held.
type RunLock interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (release func(), err error)
}

// LocalLock is a RunLock for a single process
type LocalLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLock creates a LocalLock
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]bool)}
}

// Acquire takes the job lock. ttl is ignored; the lock lives until released.
func (l *LocalLock) Acquire(ctx context.Context, job string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[job] {
		return nil, ErrRunInProgress
	}
	l.held[job] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, job)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the key only if it still holds our token, so a run
// that outlived its TTL cannot release a newer run's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a RunLock shared by every instance pointing at the same Redis
type RedisLock struct {
	client *redis.Client
	prefix string
	log    *logrus.Logger
}

// NewRedisLock creates a RedisLock. Keys are "<prefix>:<job>".
func NewRedisLock(client *redis.Client, prefix string, log *logrus.Logger) *RedisLock {
	if prefix == "" {
		prefix = "menuboard:scheduler"
	}
	if log == nil {
		log = logrus.New()
	}
	return &RedisLock{client: client, prefix: prefix, log: log}
}

func (l *RedisLock) key(job string) string {
	return fmt.Sprintf("%s:%s", l.prefix, job)
}

// Acquire sets the job key with SET NX PX. The key expires after ttl even if
// the holder crashes.
func (l *RedisLock) Acquire(ctx context.Context, job string, ttl time.Duration) (func(), error) {
	key := l.key(job)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				l.log.WithError(err).WithField("job", job).Warn("Failed to release run lock")
			}
		})
	}, nil
}
