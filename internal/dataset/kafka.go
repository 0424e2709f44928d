package dataset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/kafka"
)

// batchMessage is the Kafka payload. A dataset is a run of batch messages
// followed by one message with End set, all under the same key so they share
// a partition and keep their order.
type batchMessage struct {
	Dataset string `json:"dataset"`
	Seq     int    `json:"seq"`
	Batch   *Batch `json:"batch,omitempty"`
	End     bool   `json:"end,omitempty"`
	Batches int    `json:"batches,omitempty"`
}

// Kafka consumes one dataset from a topic, stopping at its end marker.
type Kafka struct {
	Config config.KafkaConfig
	Topic  string
}

func (k *Kafka) Batches(ctx context.Context) ([]Batch, error) {
	var c collector
	consumer := kafka.NewConsumer(k.Config, k.Topic, c.handle)
	if err := consumer.Run(ctx); err != nil {
		return nil, err
	}
	if !c.done {
		return nil, fmt.Errorf("topic %s ended before the dataset end marker", k.Topic)
	}
	slog.Default().With("component", "dataset").Debug("kafka loaded", "topic", k.Topic, "summary", describe(c.batches))
	return c.batches, nil
}

// collector accumulates batch messages until the end marker.
type collector struct {
	dataset string
	batches []Batch
	done    bool
}

func (c *collector) handle(_ context.Context, _ []byte, value []byte) error {
	msg, err := kafka.DecodeJSON[batchMessage](value)
	if err != nil {
		return err
	}
	if c.dataset == "" {
		c.dataset = msg.Dataset
	}
	if msg.Dataset != c.dataset {
		return fmt.Errorf("message of dataset %q inside dataset %q", msg.Dataset, c.dataset)
	}
	if msg.Seq != len(c.batches) {
		return fmt.Errorf("dataset %s: batch %d arrived after %d batches", c.dataset, msg.Seq, len(c.batches))
	}
	if msg.End {
		if msg.Batches != len(c.batches) {
			return fmt.Errorf("dataset %s: end marker announces %d batches, got %d", c.dataset, msg.Batches, len(c.batches))
		}
		c.done = true
		return kafka.ErrStop
	}
	if msg.Batch == nil {
		return fmt.Errorf("dataset %s: batch %d is empty", c.dataset, msg.Seq)
	}
	c.batches = append(c.batches, *msg.Batch)
	return nil
}

// PublishKafka writes batches and the end marker as one dataset.
func PublishKafka(ctx context.Context, p *kafka.Producer, dataset string, batches []Batch) error {
	events := make([]kafka.Event, 0, len(batches)+1)
	for i := range batches {
		events = append(events, kafka.Event{
			Key:   dataset,
			Value: batchMessage{Dataset: dataset, Seq: i, Batch: &batches[i]},
		})
	}
	events = append(events, kafka.Event{
		Key:   dataset,
		Value: batchMessage{Dataset: dataset, Seq: len(batches), End: true, Batches: len(batches)},
	})
	return p.Publish(ctx, events...)
}
