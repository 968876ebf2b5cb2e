// Package orphan reports blobs that lost their owning trip record and
// sweeps them up later.
//
// A blob becomes an orphan when compensation after a failed ingestion, or
// the blob cleanup after a trip deletion, cannot remove it. The failure is
// published as an Event; the sweeper consumes events and retries the
// delete.
package orphan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mkmilan/travel-server/pkg/kafkaclient"
)

// Event names one orphaned blob.
type Event struct {
	BlobID   string    `json:"blobId"`
	TripID   string    `json:"tripId,omitempty"`
	OwnerID  string    `json:"ownerId,omitempty"`
	Reason   string    `json:"reason"`
	Error    string    `json:"error,omitempty"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

const (
	ReasonCompensation = "compensation"
	ReasonTripDeleted  = "trip_deleted"
	ReasonPhotoDeleted = "photo_deleted"
)

// Reporter records orphaned blobs for a later sweep.
type Reporter interface {
	Report(ctx context.Context, ev Event) error
}

// Publisher is a Reporter backed by a Kafka topic. Events are keyed by
// blob id.
type Publisher struct {
	producer *kafkaclient.KafkaProducer
}

func NewPublisher(producer *kafkaclient.KafkaProducer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) Report(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, []byte(ev.BlobID), body)
}
