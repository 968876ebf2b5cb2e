package orphan

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mkmilan/travel-server/internal/storage"
	"github.com/mkmilan/travel-server/pkg/kafkaclient"
	"github.com/segmentio/kafka-go"
)

type fakeIterator struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func newFakeIterator(values ...[]byte) *fakeIterator {
	it := &fakeIterator{ch: make(chan kafka.Message, len(values))}
	for i, v := range values {
		it.ch <- kafka.Message{Offset: int64(i), Value: v}
	}
	close(it.ch)
	return it
}

func (f *fakeIterator) Messages() <-chan kafka.Message { return f.ch }

func (f *fakeIterator) CommitOffset(_ context.Context, msg kafka.Message) error {
	f.mu.Lock()
	f.committed = append(f.committed, msg.Offset)
	f.mu.Unlock()
	return nil
}

type recordingReporter struct {
	events []Event
}

func (r *recordingReporter) Report(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

type failingDeletes struct {
	*storage.MemoryStore
}

func (failingDeletes) Delete(context.Context, string) error {
	return storage.ErrDelete
}

func encode(t *testing.T, ev Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSweeper_DeletesOrphans(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryStore()
	id, err := blobs.Upload(ctx, bytes.NewReader([]byte("gpx")), "t.gpx", "application/gpx+xml", nil)
	if err != nil {
		t.Fatal(err)
	}

	it := newFakeIterator(
		encode(t, Event{BlobID: id, Reason: ReasonCompensation}),
		encode(t, Event{BlobID: "already-gone", Reason: ReasonTripDeleted}),
		[]byte("{not json"),
	)

	stats := NewSweeper(it, blobs, nil).Run(ctx)

	if stats.Deleted != 2 || stats.Dropped != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if blobs.Len() != 0 {
		t.Fatalf("blob not swept")
	}
	if len(it.committed) != 3 {
		t.Fatalf("committed %v, want every offset", it.committed)
	}
}

func TestSweeper_RequeuesFailures(t *testing.T) {
	reporter := &recordingReporter{}
	it := newFakeIterator(
		encode(t, Event{BlobID: "b1", Attempts: 0}),
		encode(t, Event{BlobID: "b2", Attempts: 4}),
	)

	s := NewSweeper(it, failingDeletes{storage.NewMemoryStore()}, reporter)
	stats := s.Run(context.Background())

	if stats.Requeued != 1 || stats.Dropped != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(reporter.events) != 1 || reporter.events[0].BlobID != "b1" || reporter.events[0].Attempts != 1 {
		t.Fatalf("requeued = %+v", reporter.events)
	}
	if reporter.events[0].Error == "" {
		t.Errorf("requeued event should carry the failure")
	}
}

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestPublisher_Report(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(kafkaclient.NewKafkaProducerWithWriter(w))

	if err := p.Report(context.Background(), Event{BlobID: "b1", TripID: "t1", Reason: ReasonCompensation}); err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "b1" {
		t.Fatalf("messages = %+v", w.msgs)
	}

	var ev Event
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.TripID != "t1" || ev.At.IsZero() || time.Since(ev.At) > time.Minute {
		t.Errorf("event = %+v", ev)
	}
}

func TestDecodeEvent(t *testing.T) {
	item := &sweepItem{msg: kafka.Message{Value: []byte(`{"reason":"compensation"}`)}}
	if err := decodeEvent(context.Background(), item); err == nil {
		t.Fatal("expected error for event without blob id")
	}
	valid := &sweepItem{msg: kafka.Message{Value: []byte(`{"blobId":"x"}`)}}
	if err := decodeEvent(context.Background(), valid); err != nil || valid.event.BlobID != "x" {
		t.Fatalf("valid event rejected: %v", err)
	}
}
