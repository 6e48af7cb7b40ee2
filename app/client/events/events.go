// Package events publishes analytics events for committed turns.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/do"
	"github.com/segmentio/kafka-go"

	"shopassist/app/config"
)

// TurnCommitted is emitted once per turn whose state was committed.
type TurnCommitted struct {
	SessionID       string    `json:"session_id"`
	State           string    `json:"state"`
	PreviousState   string    `json:"previous_state"`
	Intent          string    `json:"intent"`
	Category        string    `json:"category,omitempty"`
	Redirect        bool      `json:"redirect"`
	Recommendations []string  `json:"recommendations"`
	EngagementScore float64   `json:"engagement_score"`
	At              time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event TurnCommitted) error
}

func New(di *do.Injector) (Publisher, error) {
	cfg := do.MustInvoke[*config.Config](di)

	if len(cfg.Kafka.Brokers) == 0 {
		slog.Info("Kafka brokers not configured, analytics events disabled")
		return Nop{}, nil
	}

	return NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
}

type Nop struct{}

func (Nop) Publish(context.Context, TurnCommitted) error {
	return nil
}

var _ do.Shutdownable = (*Kafka)(nil)

// Kafka writes events asynchronously, keyed by session id so that a
// session's events stay ordered within one partition.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 100 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					slog.Error("Failed to publish analytics events",
						"count", len(messages),
						"error", err,
					)
				}
			},
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, event TurnCommitted) error {
	msg, err := message(event)
	if err != nil {
		return err
	}
	if err = k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (k *Kafka) Shutdown() error {
	return k.writer.Close()
}

func message(event TurnCommitted) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.SessionID),
		Value: value,
		Time:  event.At,
	}, nil
}
