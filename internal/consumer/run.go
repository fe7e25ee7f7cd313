package consumer

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/app"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/database"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/health"
	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer/configuration"
	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer/metrics"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventdb"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventlog"
)

// Run creates a worker that takes upload events from the durable log and
// inserts them into the events database. It runs until a SIGTERM is
// received.
func Run(config *configuration.ConsumerConfiguration) error {
	log.Info("Upload consumer starting")
	if err := config.Validate(); err != nil {
		return err
	}

	ctx := app.CreateContextWithShutdown()

	db := redis.NewUniversalClient(&config.Redis)
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("failed to close Redis client")
		}
	}()

	pool, err := database.OpenPgxPool(ctx, config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "error connecting to postgres")
	}
	defer pool.Close()

	store, err := eventdb.New(pool, config.DedupCacheSize)
	if err != nil {
		return err
	}

	eventLog := eventlog.New(db, config.Stream, config.ConsumerGroup)
	if err := eventLog.EnsureGroup(ctx); err != nil {
		return err
	}

	startupChecker := health.NewStartupCompleteChecker()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.SetupHttpMux(mux, health.NewMultiChecker(startupChecker, eventLog, store))
	shutdownMetricServer := common.ServeHttp(config.MetricsPort, mux)
	defer shutdownMetricServer()

	worker := NewWorker(eventLog, store, metrics.Get(), config)
	startupChecker.MarkComplete()
	return worker.Run(ctx)
}

// Migrate brings the events database schema up to date and returns.
func Migrate(ctx context.Context, config *configuration.ConsumerConfiguration) error {
	pool, err := database.OpenPgxPool(ctx, config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "error connecting to postgres")
	}
	defer pool.Close()
	return eventdb.Migrate(ctx, pool)
}
