package configuration

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common/database"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/stormerrors"
)

type ConsumerConfiguration struct {
	// Event log configuration
	Redis redis.UniversalOptions
	// Database configuration
	Postgres database.Config
	// Metrics configuration
	MetricsPort uint16
	// Name of the stream holding upload events
	Stream string
	// Name of the consumer group the worker joins
	ConsumerGroup string
	// Stable consumer name within the group; derived from the hostname when empty
	ConsumerName string
	// Maximum number of entries read (and reclaimed) per cycle
	BatchSize int64
	// Maximum time a read blocks waiting for new entries
	BlockDuration time.Duration
	// Minimum idle time before a pending entry may be reclaimed from another consumer
	MinIdleTime time.Duration
	// Upper bound for the error backoff between cycles
	BackoffCap time.Duration
	// Number of deliveries after which an entry is considered poisoned and retired
	PoisonDeliveryLimit int64
	// Stream length above which fully retired entries are trimmed
	TrimTarget int64
	// Minimum time between trim attempts
	TrimInterval time.Duration
	// Number of confirmed message ids remembered to short-circuit re-inserts
	DedupCacheSize int
}

func (c *ConsumerConfiguration) Validate() error {
	if c.Stream == "" {
		return &stormerrors.ErrInvalidConfiguration{Name: "stream", Message: "stream must be non-empty"}
	}
	if c.ConsumerGroup == "" {
		return &stormerrors.ErrInvalidConfiguration{Name: "consumerGroup", Message: "consumerGroup must be non-empty"}
	}
	if c.BatchSize <= 0 {
		return &stormerrors.ErrInvalidConfiguration{Name: "batchSize", Message: "batchSize must be positive"}
	}
	// BLOCK 0 means block forever in Redis; a read must always time out.
	if c.BlockDuration <= 0 {
		return &stormerrors.ErrInvalidConfiguration{Name: "blockDuration", Message: "blockDuration must be positive"}
	}
	if c.MinIdleTime <= 0 {
		return &stormerrors.ErrInvalidConfiguration{Name: "minIdleTime", Message: "minIdleTime must be positive"}
	}
	if c.PoisonDeliveryLimit <= 0 {
		return &stormerrors.ErrInvalidConfiguration{Name: "poisonDeliveryLimit", Message: "poisonDeliveryLimit must be positive"}
	}
	if c.DedupCacheSize <= 0 {
		return &stormerrors.ErrInvalidConfiguration{Name: "dedupCacheSize", Message: "dedupCacheSize must be positive"}
	}
	return nil
}
