package presence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher keeps the roster in a Redis hash mapping slot id to username.
type RedisPublisher struct {
	client *redis.Client
	key    string
}

// NewRedisPublisher creates a publisher writing to the hash at key.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	pub := presence.NewRedisPublisher(client, "gameserver:players")
func NewRedisPublisher(client *redis.Client, key string) *RedisPublisher {
	return &RedisPublisher{client: client, key: key}
}

// Ping verifies the connection to Redis.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping error: %w", err)
	}

	return nil
}

// Join sets field id of the roster hash to username.
func (p *RedisPublisher) Join(ctx context.Context, id int, username string) error {
	if err := p.client.HSet(ctx, p.key, strconv.Itoa(id), username).Err(); err != nil {
		return fmt.Errorf("redis hset error: %w", err)
	}

	return nil
}

// Leave deletes field id from the roster hash.
func (p *RedisPublisher) Leave(ctx context.Context, id int) error {
	if err := p.client.HDel(ctx, p.key, strconv.Itoa(id)).Err(); err != nil {
		return fmt.Errorf("redis hdel error: %w", err)
	}

	return nil
}

// Clear deletes the roster hash.
func (p *RedisPublisher) Clear(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}

	return nil
}

// Roster returns the current roster keyed by slot id.
func (p *RedisPublisher) Roster(ctx context.Context) (map[int]string, error) {
	fields, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall error: %w", err)
	}

	roster := make(map[int]string, len(fields))
	for k, v := range fields {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		roster[id] = v
	}

	return roster, nil
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
