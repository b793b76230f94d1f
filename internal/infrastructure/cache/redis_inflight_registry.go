package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	syncdomain "github.com/ledgerlink/backend/internal/domain/sync"
)

// releaseScript deletes the key only if the caller still holds it, so a slow
// job cannot release a key re-acquired by a newer job after TTL expiry.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// acquireAttempts bounds the SETNX/GET loop in Acquire. The loop only repeats
// when the holder expires in the window between the two commands.
const acquireAttempts = 3

// ErrInFlightRace is returned when Acquire keeps losing the race against
// expiring holders. Callers treat it like any transient registry failure.
var ErrInFlightRace = errors.New("cache: in-flight holder kept expiring during acquire")

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// redisCommands is the slice of the Redis client Acquire depends on
type redisCommands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisInFlightRegistry implements InFlightRegistry on Redis so multiple
// instances share the at-most-one-in-flight guarantee per record.
type RedisInFlightRegistry struct {
	client    *redis.Client
	cmds      redisCommands
	keyPrefix string
}

// NewRedisInFlightRegistry creates a Redis-backed in-flight registry
func NewRedisInFlightRegistry(cfg RedisConfig) (*RedisInFlightRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisInFlightRegistry{
		client:    client,
		cmds:      client,
		keyPrefix: "sync:inflight:",
	}, nil
}

// NewRedisInFlightRegistryWithClient creates a registry with an existing
// Redis client. Useful for testing or when sharing a client across components.
func NewRedisInFlightRegistryWithClient(client *redis.Client, keyPrefix string) *RedisInFlightRegistry {
	if keyPrefix == "" {
		keyPrefix = "sync:inflight:"
	}
	return &RedisInFlightRegistry{
		client:    client,
		cmds:      client,
		keyPrefix: keyPrefix,
	}
}

// Acquire registers jobID for key using SETNX. On contention the current
// holder's job id is fetched and returned. A holder that expires between the
// SETNX and the GET makes the pair retry; the key is free again at that point.
func (r *RedisInFlightRegistry) Acquire(ctx context.Context, key string, jobID uuid.UUID, ttl time.Duration) (uuid.UUID, bool, error) {
	fullKey := r.keyPrefix + key

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		acquired, err := r.cmds.SetNX(ctx, fullKey, jobID.String(), ttl).Result()
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("failed to acquire in-flight key: %w", err)
		}
		if acquired {
			return jobID, true, nil
		}

		holder, err := r.cmds.Get(ctx, fullKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("failed to read in-flight holder: %w", err)
		}

		holderID, err := uuid.Parse(holder)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("corrupt in-flight holder %q: %w", holder, err)
		}
		return holderID, false, nil
	}

	return uuid.Nil, false, ErrInFlightRace
}

// Release frees the key if jobID still holds it
func (r *RedisInFlightRegistry) Release(ctx context.Context, key string, jobID uuid.UUID) error {
	fullKey := r.keyPrefix + key
	if err := releaseScript.Run(ctx, r.client, []string{fullKey}, jobID.String()).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release in-flight key: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (r *RedisInFlightRegistry) Close() error {
	return r.client.Close()
}

// Ensure RedisInFlightRegistry implements InFlightRegistry
var _ syncdomain.InFlightRegistry = (*RedisInFlightRegistry)(nil)
