package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SubmissionEvent is what intake publishes when a submission is queued
type SubmissionEvent struct {
	SubmissionID string    `json:"submission_id"`
	Category     string    `json:"category,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// SubmissionConsumer calls trigger for every submission event. The queue stays the source
// of truth, so events are committed whether or not they parse.
type SubmissionConsumer struct {
	reader  messageReader
	trigger func()
	logger  ectologger.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewSubmissionConsumer(cfg ConsumerConfig, trigger func(), logger ectologger.Logger) *SubmissionConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})
	return &SubmissionConsumer{reader: reader, trigger: trigger, logger: logger}
}

func (c *SubmissionConsumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).Info("Submission consumer started")
	return nil
}

func (c *SubmissionConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *SubmissionConsumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		c.handle(ctx, msg)
	}
}

func (c *SubmissionConsumer) handle(ctx context.Context, msg kafka.Message) {
	for _, h := range msg.Headers {
		if h.Key == "traceparent" {
			ctx = tracing.WithTraceParent(ctx, string(h.Value))
			break
		}
	}
	ctx, span := tracing.StartSpan(ctx, "kafka.SubmissionConsumer.handle")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	var event SubmissionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.WithError(err).Warn("Ignoring malformed submission event")
	} else if event.SubmissionID == "" {
		log.Warn("Ignoring submission event without submission_id")
	} else {
		log.WithField("submission_id", event.SubmissionID).Debug("Submission queued; triggering routing tick")
		c.trigger()
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		tracing.RecordError(span, err)
		log.WithError(err).Error("Failed to commit message")
	}
}
