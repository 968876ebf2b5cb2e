// Package bootstrap opens the backends named in the configuration.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mkmilan/travel-server/internal/config"
	"github.com/mkmilan/travel-server/internal/db"
	"github.com/mkmilan/travel-server/internal/ingest"
	"github.com/mkmilan/travel-server/internal/storage"
	"github.com/mkmilan/travel-server/internal/store"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
	"go.mongodb.org/mongo-driver/mongo"
)

const metricsInterval = 10 * time.Second

// Closer releases whatever a constructor opened. It is never nil.
type Closer func()

func noop() {}

// Connections holds the clients shared by several backends so each is
// dialled once.
type Connections struct {
	cfg   config.Config
	mongo *mongo.Client
}

func NewConnections(cfg config.Config) *Connections {
	return &Connections{cfg: cfg}
}

func (c *Connections) mongoDB() (*mongo.Database, error) {
	if c.mongo == nil {
		client, err := db.ConnectMongo(c.cfg)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		c.mongo = client
	}
	return c.mongo.Database(c.cfg.MongoDatabase), nil
}

// Close disconnects shared clients.
func (c *Connections) Close() {
	if c.mongo != nil {
		_ = c.mongo.Disconnect(context.Background())
	}
}

// BlobStore opens the backend selected by BLOB_BACKEND.
func (c *Connections) BlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch c.cfg.BlobBackend {
	case "minio":
		s3, err := storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:  c.cfg.MinioEndpoint,
			AccessKey: c.cfg.MinioAccessKey,
			SecretKey: c.cfg.MinioSecretKey,
			UseSSL:    c.cfg.MinioUseSSL,
			Bucket:    c.cfg.MinioBucket,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	case "gridfs":
		database, err := c.mongoDB()
		if err != nil {
			return nil, err
		}
		gfs, err := storage.NewGridFSStore(database, c.cfg.GridFSBucket)
		if err != nil {
			return nil, err
		}
		return gfs, nil
	case "memory":
		log.WithField("prefix", "bootstrap").Warn("using in-memory blob store, blobs are lost on exit")
		return storage.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown BLOB_BACKEND %q", c.cfg.BlobBackend)
}

// TripStore opens the backend selected by TRIP_STORE.
func (c *Connections) TripStore(ctx context.Context) (ingest.TripStore, Closer, error) {
	switch c.cfg.TripStore {
	case "mongo":
		database, err := c.mongoDB()
		if err != nil {
			return nil, noop, err
		}
		return store.NewMongoTripStore(database), noop, nil
	case "postgres":
		pool, err := db.ConnectPostgres(c.cfg)
		if err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		s := store.NewPostgresTripStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("ensure schema: %w", err)
		}
		return s, pool.Close, nil
	case "memory":
		log.WithField("prefix", "bootstrap").Warn("using in-memory trip store, trips are lost on exit")
		return store.NewMemoryTripStore(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown TRIP_STORE %q", c.cfg.TripStore)
}

// Sentry initialises error reporting when a DSN is configured.
func Sentry(cfg config.Config) Closer {
	if cfg.SentryDSN == "" {
		return noop
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		AttachStacktrace: true,
		Environment:      cfg.SentryEnvironment,
	}); err != nil {
		log.WithField("prefix", "init").Error(err)
		return noop
	}
	log.WithField("prefix", "init").Info("Initialized sentry")
	return func() { sentry.Flush(2 * time.Second) }
}

// Metrics returns the root scope for the process.
func Metrics(cfg config.Config) (tally.Scope, Closer) {
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   cfg.MetricsPrefix,
		Reporter: tally.NullStatsReporter,
	}, metricsInterval)
	return scope, closeQuietly(closer)
}

func closeQuietly(c io.Closer) Closer {
	return func() { _ = c.Close() }
}
