package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() ConsumerConfiguration {
	return ConsumerConfiguration{
		Stream:              "connectstorm:uploads",
		ConsumerGroup:       "connectstorm_group",
		BatchSize:           50,
		BlockDuration:       500 * time.Millisecond,
		MinIdleTime:         30 * time.Second,
		PoisonDeliveryLimit: 5,
		DedupCacheSize:      1000,
	}
}

func TestValidate(t *testing.T) {
	config := validConfig()
	assert.NoError(t, config.Validate())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := map[string]func(c *ConsumerConfiguration){
		"empty stream":               func(c *ConsumerConfiguration) { c.Stream = "" },
		"empty consumer group":       func(c *ConsumerConfiguration) { c.ConsumerGroup = "" },
		"zero batch size":            func(c *ConsumerConfiguration) { c.BatchSize = 0 },
		"negative batch size":        func(c *ConsumerConfiguration) { c.BatchSize = -1 },
		"zero block duration":        func(c *ConsumerConfiguration) { c.BlockDuration = 0 },
		"negative block duration":    func(c *ConsumerConfiguration) { c.BlockDuration = -time.Second },
		"zero min idle time":         func(c *ConsumerConfiguration) { c.MinIdleTime = 0 },
		"negative min idle time":     func(c *ConsumerConfiguration) { c.MinIdleTime = -time.Second },
		"zero poison delivery limit": func(c *ConsumerConfiguration) { c.PoisonDeliveryLimit = 0 },
		"zero dedup cache size":      func(c *ConsumerConfiguration) { c.DedupCacheSize = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := validConfig()
			mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}
