package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"temple-quiz-service/internal/domain"
)

const (
	// EventResultSubmitted is emitted once per submitted session.
	EventResultSubmitted = "quiz.result_submitted"
	eventSource          = "temple-quiz-service"
	eventVersion         = "1"
)

// ResultSubmitted is the payload published for every finished attempt.
type ResultSubmitted struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Source    string              `json:"source"`
	Version   string              `json:"version"`
	Timestamp time.Time           `json:"timestamp"`
	Result    domain.ResultRecord `json:"result"`
}

// Config selects the transport. With no brokers events stay in process.
type Config struct {
	KafkaBrokers []string
	Topic        string
}

// Publisher implements app.EventPublisher on top of a watermill publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisher builds a Kafka publisher when brokers are configured and an in-process
// channel otherwise.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.KafkaBrokers) == 0 {
		pub, _ := NewChannelPublisher(cfg.Topic, logger)
		return pub, nil
	}

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, newZapAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return New(publisher, cfg.Topic, logger), nil
}

// NewChannelPublisher returns a publisher backed by an in-process channel along with
// the channel, so callers can subscribe to the same topic.
func NewChannelPublisher(topic string, logger *zap.Logger) (*Publisher, *gochannel.GoChannel) {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, newZapAdapter(logger))
	return New(ch, topic, logger), ch
}

func New(publisher message.Publisher, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		topic = EventResultSubmitted
	}
	return &Publisher{publisher: publisher, topic: topic, logger: logger}
}

// PublishResultSubmitted announces a submitted result.
func (p *Publisher) PublishResultSubmitted(ctx context.Context, record domain.ResultRecord) error {
	event := ResultSubmitted{
		ID:        uuid.NewString(),
		Type:      EventResultSubmitted,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: record.SubmittedAt.UTC(),
		Result:    record,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal result event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	msg.Metadata.Set("session_id", record.SessionID)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish result event: %w", err)
	}
	p.logger.Debug("published result event",
		zap.String("event_id", event.ID),
		zap.String("session_id", record.SessionID),
		zap.String("topic", p.topic))
	return nil
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}
