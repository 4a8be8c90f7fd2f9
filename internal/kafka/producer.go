package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
)

// Event types published by the check-in service.
const (
	EventCheckin         = "attendee.checkin"
	EventRaffleWinner    = "raffle.winner"
	EventImportCompleted = "import.completed"
)

// Event is the envelope written as the message value.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func NewEvent(eventType string, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topics map[string]string
	log    *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newProducer(writer, topics, log)
}

func newProducer(w messageWriter, topics config.TopicConfig, log *logger.Logger) *Producer {
	return &Producer{
		writer: w,
		topics: map[string]string{
			EventCheckin:         topics.Checkin,
			EventRaffleWinner:    topics.RaffleWinner,
			EventImportCompleted: topics.ImportComplete,
		},
		log: log,
	}
}

// Publish streams the event to the topic configured for its type. The event
// id is the message key.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	topic, ok := p.topics[event.Type]
	if !ok || topic == "" {
		return fmt.Errorf("no topic configured for event type %q", event.Type)
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.ID),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	p.log.LogKafka("PUBLISH", topic, event.ID)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
