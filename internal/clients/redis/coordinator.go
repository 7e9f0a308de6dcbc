package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/lineflow-backend/internal/pkg/httpx"
	"github.com/yungbote/lineflow-backend/internal/platform/envutil"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

// Coordinator deduplicates webhook events and serializes work per customer
// across replicas.
type Coordinator interface {
	// MarkOnce reports whether key was claimed by this call. Later calls within
	// ttl return false.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Lock blocks until key is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
	Close() error
}

var ErrLockTimeout = errors.New("redis: lock wait exceeded")

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

func ConfigFromEnv() Config {
	return Config{
		Addr:      envutil.String("REDIS_ADDR", ""),
		Password:  envutil.String("REDIS_PASSWORD", ""),
		DB:        envutil.Int("REDIS_DB", 0),
		KeyPrefix: envutil.String("REDIS_KEY_PREFIX", "lineflow"),
	}
}

// New connects to Redis. With no address configured it returns the
// in-process coordinator.
func New(log *logger.Logger, cfg Config) (Coordinator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		log.Warn("REDIS_ADDR not set; using in-process event dedupe and customer locks")
		return NewInMemory(), nil
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.KeyPrefix), ":")
	if prefix == "" {
		prefix = "lineflow"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisCoordinator{
		log:    log.With("client", "RedisCoordinator"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

type redisCoordinator struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *redisCoordinator) key(kind, k string) string {
	return c.prefix + ":" + kind + ":" + k
}

func (c *redisCoordinator) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return true, nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ok, err := c.rdb.SetNX(ctx, c.key("event", key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (c *redisCoordinator) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	k := c.key("lock", key)
	token := uuid.NewString()
	base := 25 * time.Millisecond

	for attempt := 1; ; attempt++ {
		ok, err := c.rdb.SetNX(ctx, k, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// release on a fresh context so a cancelled request still frees the key
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(rctx, c.rdb, []string{k}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
					c.log.Warn("redis unlock failed", "key", key, "error", err)
				}
			}, nil
		}
		if err := httpx.SleepContext(ctx, httpx.Backoff(base, 500*time.Millisecond, attempt)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
	}
}

func (c *redisCoordinator) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// ---------- in-process ----------

type memoryCoordinator struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	locks map[string]*keyLock
	now   func() time.Time
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewInMemory returns a Coordinator scoped to this process.
func NewInMemory() Coordinator {
	return &memoryCoordinator{
		seen:  map[string]time.Time{},
		locks: map[string]*keyLock{},
		now:   time.Now,
	}
}

func (m *memoryCoordinator) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return true, nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.seen {
		if !now.Before(exp) {
			delete(m.seen, k)
		}
	}
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

func (m *memoryCoordinator) Lock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.drop(key, l)
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.drop(key, l)
		})
	}, nil
}

func (m *memoryCoordinator) drop(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *memoryCoordinator) Close() error { return nil }
