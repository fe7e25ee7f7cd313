package configuration

import (
	"github.com/redis/go-redis/v9"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common/database"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/stormerrors"
	consumerconfig "github.com/bhumitschaudhry/ConnectStorm/internal/consumer/configuration"
	"github.com/bhumitschaudhry/ConnectStorm/internal/storage"
)

type ServerConfiguration struct {
	// Port the gateway listens on
	Port uint16
	// Metrics configuration
	MetricsPort uint16
	// Event log configuration
	Redis redis.UniversalOptions
	// Database configuration
	Postgres database.Config
	// Name of the stream upload events are appended to
	Stream string
	// Name of the consumer group created at startup
	ConsumerGroup string
	// Maximum accepted request body size
	MaxUploadBytes int64
	// Where uploaded file content is written
	Storage storage.Config
	// Runs the consumer worker inside the gateway process, for
	// single-process deployments
	EnableConsumer bool
	// Tuning for the embedded worker; its connection and stream settings
	// are taken from the gateway's own
	Consumer consumerconfig.ConsumerConfiguration
}

func (c *ServerConfiguration) Validate() error {
	if c.Stream == "" {
		return &stormerrors.ErrInvalidConfiguration{Name: "stream", Message: "stream must be non-empty"}
	}
	if c.ConsumerGroup == "" {
		return &stormerrors.ErrInvalidConfiguration{Name: "consumerGroup", Message: "consumerGroup must be non-empty"}
	}
	if c.MaxUploadBytes <= 0 {
		return &stormerrors.ErrInvalidConfiguration{Name: "maxUploadBytes", Message: "maxUploadBytes must be positive"}
	}
	return nil
}
