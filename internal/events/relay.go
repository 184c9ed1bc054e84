package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Outbox хранит неотправленные события.
// PublishPending передаёт в fn пачку событий и помечает их отправленными, только если fn вернула nil.
type Outbox interface {
	PublishPending(ctx context.Context, limit int, fn func(ctx context.Context, records []Record) error) (int, error)
}

// MessageWriter описывает часть kafka.Writer, используемую релеем.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// RelayConfig задаёт параметры релея.
type RelayConfig struct {
	PollEvery time.Duration
	BatchSize int
}

// Relay периодически переносит события из outbox в Kafka.
type Relay struct {
	outbox    Outbox
	writer    MessageWriter
	logger    *zap.Logger
	pollEvery time.Duration
	batchSize int
}

// NewKafkaWriter создаёт писателя Kafka; топик берётся из сообщения.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewRelay создаёт релей. При writer == nil релей только логирует, что доставка отключена.
func NewRelay(outbox Outbox, writer MessageWriter, logger *zap.Logger, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Relay{
		outbox:    outbox,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run блокируется до отмены контекста.
func (r *Relay) Run(ctx context.Context) {
	if r.writer == nil {
		r.logger.Warn("event relay disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.logger.Error("outbox publish failed", zap.Error(err))
			}
		}
	}
}

// Flush отправляет одну пачку событий и возвращает их количество.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	return r.outbox.PublishPending(ctx, r.batchSize, func(ctx context.Context, records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, rec := range records {
			msgs = append(msgs, Message(rec.Event))
		}
		return r.writer.WriteMessages(ctx, msgs...)
	})
}

// Message превращает событие в сообщение Kafka, ключом служит идентификатор агрегата.
func Message(e Event) kafka.Message {
	return kafka.Message{
		Topic: string(e.Type),
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "aggregate_type", Value: []byte(e.AggregateType)},
		},
	}
}
