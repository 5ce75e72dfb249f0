package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Value struct {
	value   string
	expires time.Time
}

// Cache is a string key-value store with expiry, kept in a local hashmap when
// self-contained, in redis otherwise. Missing keys read as "".
type Cache struct {
	mutex   sync.RWMutex
	hashmap map[string]Value

	sugar       *zap.SugaredLogger
	redisClient *redis.Client
	stop        chan struct{}
	stopOnce    sync.Once
}

func NewLocal(sugar *zap.SugaredLogger) *Cache {
	c := &Cache{
		hashmap: make(map[string]Value),
		sugar:   sugar,
		stop:    make(chan struct{}),
	}
	go c.checkForLocalExpiredKeys()
	return c
}

func NewRedis(sugar *zap.SugaredLogger, redisClient *redis.Client) *Cache {
	return &Cache{sugar: sugar, redisClient: redisClient, stop: make(chan struct{})}
}

func (c *Cache) selfContained() bool {
	return c.redisClient == nil
}

func (c *Cache) checkForLocalExpiredKeys() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mutex.Lock()
			for key, v := range c.hashmap {
				if v.expires.Before(now) {
					delete(c.hashmap, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if c.selfContained() {
		c.sugar.Debugf("Getting value of key [%s] from hashmap", key)

		c.mutex.RLock()
		defer c.mutex.RUnlock()

		v, exists := c.hashmap[key]
		if !exists || v.expires.Before(time.Now()) {
			return "", nil
		}
		return v.value, nil
	}

	c.sugar.Debugf("Getting value of key [%s] from redis", key)

	value, err := c.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

func (c *Cache) Set(ctx context.Context, key string, value string, expires time.Duration) error {
	if c.selfContained() {
		c.sugar.Debugf("Setting value of key [%s] in hashmap", key)

		c.mutex.Lock()
		defer c.mutex.Unlock()

		c.hashmap[key] = Value{value, time.Now().Add(expires)}
		return nil
	}

	c.sugar.Debugf("Setting value of key [%s] in redis", key)
	return c.redisClient.Set(ctx, key, value, expires).Err()
}

func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
