package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common"
	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer"
	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer/configuration"
)

const (
	CustomConfigLocation string = "config"
	MigrateDatabase      string = "migrateDatabase"
)

func init() {
	pflag.StringSlice(CustomConfigLocation, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	pflag.Bool(MigrateDatabase, false, "Migrate database instead of running the consumer")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.ConsumerConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/consumer", userSpecifiedConfigs)

	if viper.GetBool(MigrateDatabase) {
		if err := consumer.Migrate(context.Background(), &config); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := consumer.Run(&config); err != nil {
		log.Fatalf("Consumer failed: %+v", err)
	}
}
