package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	syncdomain "github.com/ledgerlink/backend/internal/domain/sync"
)

// InMemoryInFlightRegistry implements InFlightRegistry with a TTL cache.
// Suitable for single-instance deployments and testing; distributed
// deployments use RedisInFlightRegistry.
type InMemoryInFlightRegistry struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewInMemoryInFlightRegistry creates an in-memory in-flight registry
func NewInMemoryInFlightRegistry() *InMemoryInFlightRegistry {
	return &InMemoryInFlightRegistry{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

// Acquire registers jobID for key. The first caller wins; later callers get
// the holder's job id back so duplicate submissions can be answered with the
// existing job.
func (r *InMemoryInFlightRegistry) Acquire(_ context.Context, key string, jobID uuid.UUID, ttl time.Duration) (uuid.UUID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.cache.Add(key, jobID, ttl); err != nil {
		if holder, found := r.cache.Get(key); found {
			return holder.(uuid.UUID), false, nil
		}
		// Holder expired between Add and Get; take the key
		r.cache.Set(key, jobID, ttl)
	}
	return jobID, true, nil
}

// Release frees the key if jobID still holds it
func (r *InMemoryInFlightRegistry) Release(_ context.Context, key string, jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, found := r.cache.Get(key)
	if !found {
		return nil
	}
	if holder.(uuid.UUID) != jobID {
		return nil
	}
	r.cache.Delete(key)
	return nil
}

// Size returns the number of held keys (for testing/monitoring)
func (r *InMemoryInFlightRegistry) Size() int {
	return r.cache.ItemCount()
}

// Ensure InMemoryInFlightRegistry implements InFlightRegistry
var _ syncdomain.InFlightRegistry = (*InMemoryInFlightRegistry)(nil)
