package bootstrap

import (
	"context"
	"testing"

	"github.com/mkmilan/travel-server/internal/config"
	"github.com/mkmilan/travel-server/internal/storage"
	"github.com/mkmilan/travel-server/internal/store"
)

func TestBlobStore(t *testing.T) {
	c := NewConnections(config.Config{BlobBackend: "memory"})
	defer c.Close()

	blobs, err := c.BlobStore(context.Background())
	if err != nil {
		t.Fatalf("BlobStore() error: %v", err)
	}
	if _, ok := blobs.(*storage.MemoryStore); !ok {
		t.Errorf("BlobStore() = %T, want *storage.MemoryStore", blobs)
	}

	c = NewConnections(config.Config{BlobBackend: "floppy"})
	if _, err := c.BlobStore(context.Background()); err == nil {
		t.Error("expected error for unknown backend")
	}

	c = NewConnections(config.Config{BlobBackend: "minio"})
	if _, err := c.BlobStore(context.Background()); err == nil {
		t.Error("expected error for minio without credentials")
	}
}

func TestTripStore(t *testing.T) {
	c := NewConnections(config.Config{TripStore: "memory"})
	trips, closeFn, err := c.TripStore(context.Background())
	if err != nil {
		t.Fatalf("TripStore() error: %v", err)
	}
	defer closeFn()
	if _, ok := trips.(*store.MemoryTripStore); !ok {
		t.Errorf("TripStore() = %T, want *store.MemoryTripStore", trips)
	}

	c = NewConnections(config.Config{TripStore: "sqlite"})
	_, closeFn, err = c.TripStore(context.Background())
	if err == nil {
		t.Error("expected error for unknown store")
	}
	closeFn()
}

func TestSentryAndMetrics(t *testing.T) {
	Sentry(config.Config{})()

	scope, closeFn := Metrics(config.Config{MetricsPrefix: "travel"})
	defer closeFn()
	scope.Counter("boot").Inc(1)
}
