package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/database"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventdb"
	"github.com/bhumitschaudhry/ConnectStorm/internal/server"
	"github.com/bhumitschaudhry/ConnectStorm/internal/server/configuration"
)

const (
	CustomConfigLocation string = "config"
	MigrateDatabase      string = "migrateDatabase"
)

func init() {
	pflag.StringSlice(CustomConfigLocation, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	pflag.Bool(MigrateDatabase, false, "Migrate database instead of running the gateway")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.ServerConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/server", userSpecifiedConfigs)

	if viper.GetBool(MigrateDatabase) {
		if err := migrateDatabase(&config); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := server.Run(&config); err != nil {
		log.Fatalf("Gateway failed: %+v", err)
	}
}

func migrateDatabase(config *configuration.ServerConfiguration) error {
	ctx := context.Background()
	log.Info("Opening connection pool to postgres")
	pool, err := database.OpenPgxPool(ctx, config.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	return eventdb.Migrate(ctx, pool)
}
