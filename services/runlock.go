package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrRunInProgress = errors.New("a run of this kind is already in progress")

// RunLock makes sure only one run of a kind executes at a time.
type RunLock interface {
	Acquire(ctx context.Context, kind string) (release func(), err error)
}

// LocalRunLock guards runs within this process.
type LocalRunLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{held: map[string]bool{}}
}

func (l *LocalRunLock) Acquire(ctx context.Context, kind string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[kind] {
		return nil, ErrRunInProgress
	}
	l.held[kind] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, kind)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock guards runs across processes sharing one Redis. The key
// expires after ttl so a crashed holder cannot block runs forever.
type RedisRunLock struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisRunLock(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisRunLock {
	return &RedisRunLock{client: client, ttl: ttl, prefix: "zaptec-invoices:run:", logger: logger}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (l *RedisRunLock) Acquire(ctx context.Context, kind string) (func(), error) {
	key := l.prefix + kind
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
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
				l.logger.Warn("failed to release run lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
