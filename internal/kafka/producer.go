package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/domain"
)

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter builds a writer with no default topic; every message names its
// own. Messages are partitioned by key so one date always lands on the same
// partition.
func NewWriter(cfg config.Kafka) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Producer publishes fetch events and refresh requests.
type Producer struct {
	writer       Writer
	eventsTopic  string
	refreshTopic string
	logger       *zap.Logger
}

func NewProducer(w Writer, cfg config.Kafka, logger *zap.Logger) *Producer {
	return &Producer{
		writer:       w,
		eventsTopic:  cfg.EventsTopic,
		refreshTopic: cfg.RefreshTopic,
		logger:       logger,
	}
}

func (p *Producer) PublishFetch(ctx context.Context, ev domain.FetchEvent) error {
	if err := p.write(ctx, p.eventsTopic, ev.Date, ev, kafkago.Header{Key: "event-id", Value: []byte(ev.ID)}); err != nil {
		return err
	}
	p.logger.Debug("fetch event published",
		zap.String("id", ev.ID),
		zap.String("date", ev.Date),
		zap.String("window", ev.Window),
		zap.Int("count", ev.Count),
	)
	return nil
}

func (p *Producer) RequestRefresh(ctx context.Context, req domain.RefreshRequest) error {
	if err := p.write(ctx, p.refreshTopic, req.Date, req); err != nil {
		return err
	}
	p.logger.Info("refresh requested",
		zap.String("topic", p.refreshTopic),
		zap.String("date", req.Date),
		zap.String("window", req.Window),
	)
	return nil
}

func (p *Producer) write(ctx context.Context, topic, key string, v any, headers ...kafkago.Header) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	msg := kafkago.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   body,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error { return p.writer.Close() }
