package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"attendx/internal/model"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// RedisLocks is a DeviceLockStore over SETNX; useful when several API
// instances share one Postgres but locks should stay cheap.
type RedisLocks struct {
	client *redis.Client
	prefix string
}

// NewRedisLocks creates a device-lock store under the given key prefix.
func NewRedisLocks(client *redis.Client, prefix string) *RedisLocks {
	if prefix == "" {
		prefix = "attendx:lock"
	}
	return &RedisLocks{client: client, prefix: prefix}
}

func (r *RedisLocks) key(sessionID, deviceID string) string {
	return r.prefix + ":" + sessionID + ":" + deviceID
}

// AcquireLock binds matricNo to the device via SETNX and returns whichever
// matric holds the lock afterwards.
func (r *RedisLocks) AcquireLock(ctx context.Context, sessionID, deviceID, matricNo string) (string, error) {
	matric := model.NormalizeMatric(matricNo)
	set, err := r.client.SetNX(ctx, r.key(sessionID, deviceID), matric, 0).Result()
	if err != nil {
		return "", err
	}
	if set {
		return matric, nil
	}
	return r.client.Get(ctx, r.key(sessionID, deviceID)).Result()
}

// GetLock returns the bound matric when the device is locked.
func (r *RedisLocks) GetLock(ctx context.Context, sessionID, deviceID string) (string, bool, error) {
	held, err := r.client.Get(ctx, r.key(sessionID, deviceID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return held, true, nil
}

// ResetLocks deletes every lock under the prefix.
func (r *RedisLocks) ResetLocks(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
