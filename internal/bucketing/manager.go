package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"registration-service/internal/config"
)

// BucketingManager spreads events over a fixed number of partitions.
type BucketingManager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

type BucketAssignment struct {
	EventBucket int    `json:"event_bucket"`
	DateBucket  string `json:"date_bucket"`
}

func NewBucketingManager(cfg config.BucketingConfig) *BucketingManager {
	buckets := cfg.EventBuckets
	if buckets <= 0 {
		buckets = 1
	}
	bm := &BucketingManager{eventBuckets: buckets}

	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetEventBucket returns a stable bucket in [0, eventBuckets) for identifier.
func (bm *BucketingManager) GetEventBucket(identifier string) int {
	return int(bm.getHash(identifier) % uint64(bm.eventBuckets))
}

// GetDateBucket returns the UTC day of t.
func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) Assign(identifier string, at time.Time) BucketAssignment {
	return BucketAssignment{
		EventBucket: bm.GetEventBucket(identifier),
		DateBucket:  bm.GetDateBucket(at),
	}
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))
	return hasher.Sum64()
}
