package main

import (
	"context"

	"github.com/mkmilan/travel-server/internal/bootstrap"
	"github.com/mkmilan/travel-server/internal/config"
	"github.com/mkmilan/travel-server/internal/env"
	"github.com/mkmilan/travel-server/internal/orphan"
	"github.com/mkmilan/travel-server/pkg/graceful"
	"github.com/mkmilan/travel-server/pkg/kafkaclient"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("prefix", "sweeper")

func main() {
	env.LoadEnv()
	cfg := config.Load()
	config.ConfigureLogging(cfg)

	ctx, cancel := graceful.Context(context.Background())
	defer cancel()
	defer bootstrap.Sentry(cfg)()

	if cfg.KafkaBroker == "" {
		logger.Fatal("KAFKA_BROKER not set")
	}
	logger.WithFields(log.Fields{
		"broker": cfg.KafkaBroker,
		"topic":  cfg.KafkaOrphanTopic,
		"group":  cfg.KafkaGroupID,
	}).Info("connecting to kafka")

	consumer, err := kafkaclient.NewKafkaConsumer(cfg.KafkaOrphanTopic, cfg.KafkaGroupID, cfg.KafkaBroker)
	if err != nil {
		logger.WithError(err).Fatal("failed to create kafka consumer")
	}
	producer, err := kafkaclient.NewKafkaProducer(cfg.KafkaOrphanTopic, cfg.KafkaBroker)
	if err != nil {
		logger.WithError(err).Fatal("failed to create kafka producer")
	}
	defer producer.Close()

	conns := bootstrap.NewConnections(cfg)
	defer conns.Close()
	blobs, err := conns.BlobStore(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to open blob store")
	}

	consumer.StartConsuming(ctx)
	stats := orphan.NewSweeper(consumer, blobs, orphan.NewPublisher(producer)).Run(ctx)
	consumer.Stop()

	logger.WithFields(log.Fields{
		"deleted":  stats.Deleted,
		"requeued": stats.Requeued,
		"dropped":  stats.Dropped,
	}).Info("sweeper finished")
}
