package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskhub/domain"
)

type backend interface {
	InsertTask(ctx context.Context, t domain.Task) error
	TasksByOwner(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error)
	TaskByID(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	ReplaceTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Cache wraps a Storage instance with Redis-backed caching of per-owner
// task lists. Any write into an owner's partition evicts that owner's
// cached lists.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis
// client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) TasksByOwner(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, ownerID, status); ok {
		return tasks, nil
	}

	tasks, err := c.base.TasksByOwner(ctx, ownerID, status)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, ownerID, status, tasks)
	return tasks, nil
}

func (c *Cache) TaskByID(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	return c.base.TaskByID(ctx, ownerID, taskID)
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) error {
	if err := c.base.InsertTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.OwnerID)
	return nil
}

func (c *Cache) ReplaceTask(ctx context.Context, t domain.Task) error {
	if err := c.base.ReplaceTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.OwnerID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if err := c.base.DeleteTask(ctx, ownerID, taskID); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) loadTasksFromCache(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := tasksCacheKey(ownerID, status)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, ownerID string, status domain.Status, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(ownerID, status), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	keys := []string{tasksCacheKey(ownerID, "")}
	for _, status := range []domain.Status{domain.StatusTodo, domain.StatusInProgress, domain.StatusCompleted} {
		keys = append(keys, tasksCacheKey(ownerID, status))
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func tasksCacheKey(ownerID string, status domain.Status) string {
	if status == "" {
		return "tasks:" + ownerID
	}
	return "tasks:" + ownerID + ":" + string(status)
}
