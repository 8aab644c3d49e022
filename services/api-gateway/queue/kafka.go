// services/api-gateway/queue/kafka.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event is the envelope written to the events topic.
type Event struct {
	Kind    string    `json:"kind"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Bus publishes lifecycle events. Delivery is best effort: failures are
// logged and never reach the caller.
type Bus struct {
	Brokers []string
	Topic   string

	w   *kafka.Writer
	log *zap.Logger
}

func New(brokers []string, topic string, log *zap.Logger) *Bus {
	b := &Bus{Brokers: brokers, Topic: topic, log: log}
	b.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn("event publish failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return b
}

func (b *Bus) Publish(ctx context.Context, key, payload []byte) error {
	return b.w.WriteMessages(ctx, kafka.Message{Key: key, Value: payload, Time: time.Now()})
}

// Emit wraps payload in an Event keyed by key, so one transaction's events
// stay on one partition.
func (b *Bus) Emit(ctx context.Context, kind, key string, payload any) {
	v, err := json.Marshal(Event{Kind: kind, Key: key, At: time.Now().UTC(), Payload: payload})
	if err != nil {
		b.log.Warn("event encode failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := b.Publish(ctx, []byte(key), v); err != nil {
		b.log.Warn("event publish failed", zap.String("kind", kind), zap.String("key", key), zap.Error(err))
	}
}

func (b *Bus) Close() error { return b.w.Close() }

// DecodeEvent parses one message value written by Emit.
func DecodeEvent(v []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(v, &ev); err != nil {
		return Event{}, err
	}
	if ev.Kind == "" {
		return Event{}, errors.New("queue: event without kind")
	}
	return ev, nil
}

// Consume reads topic as consumer group groupID until ctx is done and hands
// every event to fn. Undecodable messages and fn errors are logged and
// skipped.
func Consume(ctx context.Context, brokers []string, topic, groupID string, log *zap.Logger, fn func(context.Context, Event) error) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()

	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		ev, err := DecodeEvent(msg.Value)
		if err != nil {
			log.Warn("bad event", zap.ByteString("key", msg.Key), zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}
		if err := fn(ctx, ev); err != nil {
			log.Warn("event handler failed", zap.String("kind", ev.Kind), zap.String("key", ev.Key), zap.Error(err))
		}
	}
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Emit(context.Context, string, string, any) {}

func (Nop) Close() error { return nil }
