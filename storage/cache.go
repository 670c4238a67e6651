package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"todo-api/domain"
)

type backend interface {
	List(ctx context.Context) ([]domain.Todo, error)
	ListCompleted(ctx context.Context) ([]domain.Todo, error)
	FindByID(ctx context.Context, id int64) (domain.Todo, error)
	Add(ctx context.Context, todo domain.Todo) (domain.Todo, error)
	Update(ctx context.Context, id int64, todo domain.Todo) (domain.Todo, error)
	Remove(ctx context.Context, id int64) error
}

const cacheKeyPrefix = "todos:"

// storeIfVersion writes KEYS[2] only while the namespace version in KEYS[1]
// still equals the one read before the backend fetch.
var storeIfVersion = redis.NewScript(`
if (redis.call("GET", KEYS[1]) or "0") == ARGV[1] then
	return redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
end
return false
`)

// Cache wraps a store with Redis-backed caching for read operations.
// Writes go to the wrapped store first and then evict the affected keys.
//
// Every Cache owns a fresh key namespace, so entries never outlive the store
// instance that produced them.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration

	prefix       string
	allKey       string
	completedKey string
	versionKey   string
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	prefix := cacheKeyPrefix + uuid.NewString() + ":"
	return &Cache{
		base:         base,
		redis:        client,
		ttl:          ttl,
		prefix:       prefix,
		allKey:       prefix + "all",
		completedKey: prefix + "complete",
		versionKey:   prefix + "version",
	}
}

func (c *Cache) List(ctx context.Context) ([]domain.Todo, error) {
	return c.cachedList(ctx, c.allKey, c.base.List)
}

func (c *Cache) ListCompleted(ctx context.Context) ([]domain.Todo, error) {
	return c.cachedList(ctx, c.completedKey, c.base.ListCompleted)
}

func (c *Cache) FindByID(ctx context.Context, id int64) (domain.Todo, error) {
	key := c.itemKey(id)
	var todo domain.Todo
	if c.load(ctx, key, &todo) {
		return todo, nil
	}

	version, ok := c.version(ctx)
	todo, err := c.base.FindByID(ctx, id)
	if err != nil {
		return domain.Todo{}, err
	}
	if ok {
		c.store(ctx, key, version, todo)
	}
	return todo, nil
}

func (c *Cache) Add(ctx context.Context, todo domain.Todo) (domain.Todo, error) {
	added, err := c.base.Add(ctx, todo)
	if err != nil {
		return domain.Todo{}, err
	}
	c.evict(ctx, added.ID)
	return added, nil
}

func (c *Cache) Update(ctx context.Context, id int64, todo domain.Todo) (domain.Todo, error) {
	updated, err := c.base.Update(ctx, id, todo)
	if err != nil {
		return domain.Todo{}, err
	}
	c.evict(ctx, id)
	return updated, nil
}

func (c *Cache) Remove(ctx context.Context, id int64) error {
	if err := c.base.Remove(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *Cache) cachedList(ctx context.Context, key string, fetch func(context.Context) ([]domain.Todo, error)) ([]domain.Todo, error) {
	var todos []domain.Todo
	if c.load(ctx, key, &todos) && todos != nil {
		return todos, nil
	}

	version, ok := c.version(ctx)
	todos, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, key, version, todos)
	}
	return todos, nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// version reports the namespace version a read observed before fetching from
// the backend. ok is false when the result must not be cached.
func (c *Cache) version(ctx context.Context) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	v, err := c.redis.Get(ctx, c.versionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	if err != nil {
		return "", false
	}
	return v, true
}

// store caches v unless a write has bumped the namespace version since the
// read started.
func (c *Cache) store(ctx context.Context, key, version string, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	ttl := c.ttl.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	_ = storeIfVersion.Run(ctx, c.redis, []string{c.versionKey, key}, version, data, ttl).Err()
}

func (c *Cache) evict(ctx context.Context, id int64) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey)
		pipe.Del(ctx, c.allKey, c.completedKey, c.itemKey(id))
		return nil
	})
}

func (c *Cache) itemKey(id int64) string {
	return c.prefix + "item:" + strconv.FormatInt(id, 10)
}
