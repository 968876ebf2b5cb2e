package orphan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mkmilan/travel-server/internal/pipeline"
	"github.com/mkmilan/travel-server/internal/storage"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxAttempts bounds how often one event is requeued.
const DefaultMaxAttempts = 5

// MessageIterator is the consumer side the sweeper reads from.
// *kafkaclient.KafkaConsumer satisfies it.
type MessageIterator interface {
	Messages() <-chan kafka.Message
	CommitOffset(ctx context.Context, msg kafka.Message) error
}

type sweepItem struct {
	msg   kafka.Message
	event Event
}

// Sweeper deletes the blobs named by orphan events. An event whose delete
// fails is requeued through the Reporter until MaxAttempts is reached; the
// original message is committed either way so the partition keeps moving.
type Sweeper struct {
	messages    MessageIterator
	blobs       storage.BlobStore
	requeue     Reporter
	MaxAttempts int
}

func NewSweeper(messages MessageIterator, blobs storage.BlobStore, requeue Reporter) *Sweeper {
	return &Sweeper{
		messages:    messages,
		blobs:       blobs,
		requeue:     requeue,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Stats counts what a Run did.
type Stats struct {
	Deleted  int
	Requeued int
	Dropped  int
}

// Run sweeps until the message channel closes.
func (s *Sweeper) Run(ctx context.Context) Stats {
	logger := log.WithField("prefix", "sweeper")

	in := make(chan *sweepItem)
	go func() {
		defer close(in)
		for msg := range s.messages.Messages() {
			select {
			case in <- &sweepItem{msg: msg}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var stats Stats
	p := pipeline.New(
		pipeline.NewStage("decode", decodeEvent),
		pipeline.NewStage("delete", s.deleteBlob),
	)
	p.Process(ctx, in, func(item *sweepItem, err error) {
		fields := log.Fields{"blob": item.event.BlobID, "offset": item.msg.Offset}
		switch {
		case err == nil:
			stats.Deleted++
			logger.WithFields(fields).Info("orphan blob deleted")
		case item.event.BlobID == "":
			stats.Dropped++
			logger.WithFields(fields).WithError(err).Error("dropping unreadable orphan event")
		default:
			if s.retry(ctx, item.event, err) {
				stats.Requeued++
			} else {
				stats.Dropped++
				logger.WithFields(fields).WithError(err).Error("giving up on orphan blob")
			}
		}
		if err := s.messages.CommitOffset(ctx, item.msg); err != nil {
			logger.WithFields(fields).WithError(err).Error("failed to commit offset")
		}
	})
	return stats
}

func (s *Sweeper) retry(ctx context.Context, ev Event, cause error) bool {
	if s.requeue == nil || ev.Attempts+1 >= s.MaxAttempts {
		return false
	}
	ev.Attempts++
	ev.Error = cause.Error()
	if err := s.requeue.Report(ctx, ev); err != nil {
		log.WithFields(log.Fields{"prefix": "sweeper", "blob": ev.BlobID}).WithError(err).Error("requeue failed")
		return false
	}
	return true
}

func decodeEvent(_ context.Context, item *sweepItem) error {
	if err := json.Unmarshal(item.msg.Value, &item.event); err != nil {
		return fmt.Errorf("decode orphan event: %w", err)
	}
	if item.event.BlobID == "" {
		return fmt.Errorf("orphan event without blob id")
	}
	return nil
}

func (s *Sweeper) deleteBlob(ctx context.Context, item *sweepItem) error {
	return s.blobs.Delete(ctx, item.event.BlobID)
}
