package main

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/mkmilan/travel-server/internal/bootstrap"
	"github.com/mkmilan/travel-server/internal/config"
	"github.com/mkmilan/travel-server/internal/db"
	"github.com/mkmilan/travel-server/internal/dedupe"
	"github.com/mkmilan/travel-server/internal/env"
	"github.com/mkmilan/travel-server/internal/ingest"
	"github.com/mkmilan/travel-server/internal/orphan"
	"github.com/mkmilan/travel-server/internal/server"
	"github.com/mkmilan/travel-server/pkg/graceful"
	"github.com/mkmilan/travel-server/pkg/imaging"
	"github.com/mkmilan/travel-server/pkg/kafkaclient"
	"github.com/mkmilan/travel-server/pkg/location"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
)

const (
	shutdownTimeout = 10 * time.Second
	geocoderTimeout = 10 * time.Second
)

var logger = log.WithField("prefix", "api")

func main() {
	env.LoadEnv()
	cfg := config.Load()
	config.ConfigureLogging(cfg)

	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logger.WithError(err).Fatal("api exited")
	}
	logger.Info("api stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	defer bootstrap.Sentry(cfg)()
	scope, closeMetrics := bootstrap.Metrics(cfg)
	defer closeMetrics()

	conns := bootstrap.NewConnections(cfg)
	defer conns.Close()

	blobs, err := conns.BlobStore(ctx)
	if err != nil {
		return err
	}
	trips, closeTrips, err := conns.TripStore(ctx)
	defer closeTrips()
	if err != nil {
		return err
	}

	opts, closeOpts, err := serviceOptions(cfg, scope)
	defer closeOpts()
	if err != nil {
		return err
	}

	svc := ingest.NewService(blobs, trips, newTranscoder(cfg, scope), opts...)
	srv := server.NewServer(cfg, svc)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()
	logger.WithFields(log.Fields{
		"addr":  cfg.ServerPort,
		"blobs": cfg.BlobBackend,
		"trips": cfg.TripStore,
	}).Info("listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return graceful.Shutdown(ctx, shutdownTimeout, srv.Shutdown)
}

func newTranscoder(cfg config.Config, scope tally.Scope) *imaging.Transcoder {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return imaging.NewTranscoder(imaging.Options{
		MaxDimension:    cfg.PhotoMaxDimension,
		TargetBytes:     cfg.PhotoTargetBytes,
		Quality:         cfg.PhotoQuality,
		FallbackQuality: cfg.PhotoFallbackQuality,
		Workers:         workers,
	}, scope)
}

// serviceOptions wires the optional collaborators: the submission guard
// when Redis is configured, orphan reporting when Kafka is, and reverse
// geocoding when a Nominatim URL is.
func serviceOptions(cfg config.Config, scope tally.Scope) ([]ingest.Option, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := []ingest.Option{
		ingest.WithMetrics(scope),
		ingest.WithLimits(ingest.Limits{MaxPhotos: cfg.PhotoMaxCount, MaxPhotoBytes: cfg.PhotoMaxBytes}),
	}

	if rdb := db.ConnectRedis(cfg); rdb != nil {
		closers = append(closers, func() { _ = rdb.Close() })
		opts = append(opts, ingest.WithGuard(dedupe.NewGuard(rdb, cfg.IdempotencyTTL)))
	} else {
		logger.Warn("REDIS_ADDR not set, duplicate submissions are not detected")
	}

	if cfg.KafkaBroker != "" {
		producer, err := kafkaclient.NewKafkaProducer(cfg.KafkaOrphanTopic, cfg.KafkaBroker)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, func() { _ = producer.Close() })
		opts = append(opts, ingest.WithOrphanReporter(orphan.NewPublisher(producer)))
	} else {
		logger.Warn("KAFKA_BROKER not set, orphaned blobs are only logged")
	}

	if cfg.GeocoderURL != "" {
		client := location.NewClient(cfg.GeocoderURL, &http.Client{Timeout: geocoderTimeout})
		opts = append(opts, ingest.WithGeocoder(client))
	}
	return opts, closeAll, nil
}
