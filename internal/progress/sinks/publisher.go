package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/progress"
)

// PublisherSink forwards each batch as one message on a topic.
type PublisherSink struct {
	pub   crawler.Publisher
	topic string
}

// Batch is the message payload.
type Batch struct {
	Events []progress.Event `json:"events"`
}

// NewPublisherSink validates its dependencies.
func NewPublisherSink(pub crawler.Publisher, topic string) (*PublisherSink, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &PublisherSink{pub: pub, topic: topic}, nil
}

// Consume publishes the batch.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if len(batch) == 0 {
		return nil
	}
	if _, err := s.pub.Publish(ctx, s.topic, Batch{Events: batch}); err != nil {
		return fmt.Errorf("publish progress batch to %s: %w", s.topic, err)
	}
	return nil
}

// Close implements the Sink interface. The publisher is owned by the caller.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
