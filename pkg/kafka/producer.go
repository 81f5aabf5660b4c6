// Package kafka publishes notifications to Kafka and wakes the scheduler when intake
// announces new submissions.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/metrics"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string

	// BreakerFailures is the number of consecutive failures that opens the breaker
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing again
	BreakerTimeout time.Duration
}

// NotificationProducer publishes notifications. A circuit breaker stops it from waiting
// on a dead broker once publishes keep failing.
type NotificationProducer struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
	topic   string
	logger  ectologger.Logger
}

var _ store.Notifier = (*NotificationProducer)(nil)

func NewNotificationProducer(cfg ProducerConfig, logger ectologger.Logger) *NotificationProducer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}
	return newNotificationProducer(writer, cfg, logger)
}

func newNotificationProducer(writer messageWriter, cfg ProducerConfig, logger ectologger.Logger) *NotificationProducer {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notification-producer",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.NotifierBreakerState.Set(float64(to))
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Notification breaker changed state")
		},
	})

	return &NotificationProducer{
		writer:  writer,
		breaker: breaker,
		topic:   cfg.Topic,
		logger:  logger,
	}
}

// Notify publishes one notification keyed by its target so a target's notifications stay ordered
func (p *NotificationProducer) Notify(ctx context.Context, notification *models.Notification) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.NotificationProducer.Notify")
	defer span.End()

	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(notification.Type)},
		{Key: "schema_version", Value: []byte("1.0")},
	}
	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
	}

	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(notification.TargetID),
		Value:   data,
		Headers: headers,
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("target_id", notification.TargetID).Error("Failed to publish notification")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"notification_id": notification.ID,
		"target_id":       notification.TargetID,
	}).Debug("Published notification")
	return nil
}

func (p *NotificationProducer) Close() error {
	return p.writer.Close()
}
