package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRedis replays queued SETNX and GET results so the acquire loop can
// be driven through races a real server only hits under contention.
type scriptedRedis struct {
	setNXResults []*redis.BoolCmd
	getResults   []*redis.StringCmd

	setNXCalls int
	getCalls   int
}

func (s *scriptedRedis) SetNX(context.Context, string, interface{}, time.Duration) *redis.BoolCmd {
	cmd := s.setNXResults[s.setNXCalls]
	s.setNXCalls++
	return cmd
}

func (s *scriptedRedis) Get(context.Context, string) *redis.StringCmd {
	cmd := s.getResults[s.getCalls]
	s.getCalls++
	return cmd
}

func newScriptedRegistry(fake *scriptedRedis) *RedisInFlightRegistry {
	return &RedisInFlightRegistry{cmds: fake, keyPrefix: "sync:inflight:"}
}

func TestRedisInFlightRegistry_Acquire(t *testing.T) {
	ctx := context.Background()

	t.Run("Free key is acquired on the first attempt", func(t *testing.T) {
		jobID := uuid.New()
		fake := &scriptedRedis{
			setNXResults: []*redis.BoolCmd{redis.NewBoolResult(true, nil)},
		}

		holder, acquired, err := newScriptedRegistry(fake).Acquire(ctx, "k", jobID, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.Equal(t, jobID, holder)
		assert.Equal(t, 1, fake.setNXCalls)
		assert.Equal(t, 0, fake.getCalls)
	})

	t.Run("Held key returns the current holder", func(t *testing.T) {
		current := uuid.New()
		fake := &scriptedRedis{
			setNXResults: []*redis.BoolCmd{redis.NewBoolResult(false, nil)},
			getResults:   []*redis.StringCmd{redis.NewStringResult(current.String(), nil)},
		}

		holder, acquired, err := newScriptedRegistry(fake).Acquire(ctx, "k", uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.False(t, acquired)
		assert.Equal(t, current, holder)
	})

	t.Run("Holder expiring between SETNX and GET retries and wins", func(t *testing.T) {
		jobID := uuid.New()
		fake := &scriptedRedis{
			setNXResults: []*redis.BoolCmd{
				redis.NewBoolResult(false, nil),
				redis.NewBoolResult(true, nil),
			},
			getResults: []*redis.StringCmd{redis.NewStringResult("", redis.Nil)},
		}

		holder, acquired, err := newScriptedRegistry(fake).Acquire(ctx, "k", jobID, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.Equal(t, jobID, holder, "the race must never surface a nil holder")
		assert.Equal(t, 2, fake.setNXCalls)
	})

	t.Run("Persistent race is reported as an error, not a nil holder", func(t *testing.T) {
		fake := &scriptedRedis{
			setNXResults: []*redis.BoolCmd{
				redis.NewBoolResult(false, nil),
				redis.NewBoolResult(false, nil),
				redis.NewBoolResult(false, nil),
			},
			getResults: []*redis.StringCmd{
				redis.NewStringResult("", redis.Nil),
				redis.NewStringResult("", redis.Nil),
				redis.NewStringResult("", redis.Nil),
			},
		}

		_, acquired, err := newScriptedRegistry(fake).Acquire(ctx, "k", uuid.New(), time.Minute)
		assert.ErrorIs(t, err, ErrInFlightRace)
		assert.False(t, acquired)
		assert.Equal(t, acquireAttempts, fake.setNXCalls)
	})

	t.Run("Corrupt holder value fails loudly", func(t *testing.T) {
		fake := &scriptedRedis{
			setNXResults: []*redis.BoolCmd{redis.NewBoolResult(false, nil)},
			getResults:   []*redis.StringCmd{redis.NewStringResult("not-a-uuid", nil)},
		}

		_, _, err := newScriptedRegistry(fake).Acquire(ctx, "k", uuid.New(), time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt in-flight holder")
	})
}
