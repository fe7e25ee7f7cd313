package server

import (
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/app"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/database"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/health"
	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer"
	consumermetrics "github.com/bhumitschaudhry/ConnectStorm/internal/consumer/metrics"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventdb"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventlog"
	"github.com/bhumitschaudhry/ConnectStorm/internal/server/configuration"
	"github.com/bhumitschaudhry/ConnectStorm/internal/storage"
)

// Run starts the upload gateway, optionally with an embedded consumer
// worker, and blocks until a SIGTERM is received.
func Run(config *configuration.ServerConfiguration) error {
	log.Info("Upload gateway starting")
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

	store, err := eventdb.New(pool, config.Consumer.DedupCacheSize)
	if err != nil {
		return err
	}

	eventLog := eventlog.New(db, config.Stream, config.ConsumerGroup)
	if err := eventLog.EnsureGroup(ctx); err != nil {
		return err
	}

	uploader, err := storage.NewUploader(ctx, config.Storage)
	if err != nil {
		return err
	}

	checker := health.NewMultiChecker(eventLog, store)

	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	g, ctx := errgroup.WithContext(ctx)

	var worker *consumer.Worker
	if config.EnableConsumer {
		workerConfig := config.Consumer
		workerConfig.Redis = config.Redis
		workerConfig.Postgres = config.Postgres
		workerConfig.Stream = config.Stream
		workerConfig.ConsumerGroup = config.ConsumerGroup
		if err := workerConfig.Validate(); err != nil {
			return err
		}
		worker = consumer.NewWorker(eventLog, store, consumermetrics.Get(), &workerConfig)
		g.Go(func() error { return worker.Run(ctx) })
	}

	var workerHandle WorkerHandle
	if worker != nil {
		workerHandle = worker
	}
	server := NewServer(eventLog, store, uploader, workerHandle, checker, config.MaxUploadBytes)
	shutdownHttpServer := common.ServeHttp(config.Port, server.Handler())
	defer shutdownHttpServer()

	<-ctx.Done()
	return g.Wait()
}
