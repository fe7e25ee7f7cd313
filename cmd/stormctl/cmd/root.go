package cmd

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/database"
	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer/configuration"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventdb"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventlog"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stormctl",
		Short: "stormctl inspects and administers the ConnectStorm upload pipeline.",
	}

	cmd.PersistentFlags().StringSlice("config", []string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")

	cmd.AddCommand(
		statusCmd(),
		resetCmd(),
		triggerCmd(),
		loadCmd(),
	)

	return cmd
}

func loadConfig(cmd *cobra.Command) *configuration.ConsumerConfiguration {
	var config configuration.ConsumerConfiguration
	userSpecifiedConfigs, _ := cmd.Flags().GetStringSlice("config")
	_ = viper.BindPFlags(cmd.Flags())
	common.LoadConfig(&config, "./config/consumer", userSpecifiedConfigs)
	return &config
}

// pipeline bundles the clients the admin commands operate on.
type pipeline struct {
	log   *eventlog.EventLog
	store *eventdb.EventDb
	close func()
}

func connect(ctx context.Context, config *configuration.ConsumerConfiguration) (*pipeline, error) {
	db := redis.NewUniversalClient(&config.Redis)

	pool, err := database.OpenPgxPool(ctx, config.Postgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store, err := eventdb.New(pool, config.DedupCacheSize)
	if err != nil {
		pool.Close()
		_ = db.Close()
		return nil, err
	}

	return &pipeline{
		log:   eventlog.New(db, config.Stream, config.ConsumerGroup),
		store: store,
		close: func() {
			pool.Close()
			_ = db.Close()
		},
	}, nil
}
