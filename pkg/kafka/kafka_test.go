package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	calls    int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func notification() *models.Notification {
	return &models.Notification{
		ID:       "n-1",
		TargetID: "cand-adunni",
		Type:     models.NotificationTypeFeedbackReceived,
		Title:    "New feedback received",
		Message:  "You received a 5-star rating from Anonymous",
	}
}

func TestNotificationProducer_Notify(t *testing.T) {
	w := &fakeWriter{}
	p := newNotificationProducer(w, ProducerConfig{Topic: "notifications"}, testLogger())

	require.NoError(t, p.Notify(context.Background(), notification()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "notifications", msg.Topic)
	assert.Equal(t, "cand-adunni", string(msg.Key))
	assert.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte("feedback_received")})

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "n-1", decoded.ID)
	assert.False(t, decoded.Read)
}

func TestNotificationProducer_BreakerOpens(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unreachable")}
	p := newNotificationProducer(w, ProducerConfig{BreakerFailures: 2, BreakerTimeout: time.Hour}, testLogger())
	ctx := context.Background()

	assert.Error(t, p.Notify(ctx, notification()))
	assert.Error(t, p.Notify(ctx, notification()))
	assert.Equal(t, gobreaker.StateOpen, p.breaker.State())

	err := p.Notify(ctx, notification())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, w.calls, "open breaker does not touch the broker")
}

type fakeReader struct {
	mu        sync.Mutex
	messages  chan kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case msg, ok := <-r.messages:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return msg, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestSubmissionConsumer(t *testing.T) {
	reader := &fakeReader{messages: make(chan kafka.Message, 3)}
	var mu sync.Mutex
	triggers := 0
	c := &SubmissionConsumer{
		reader: reader,
		trigger: func() {
			mu.Lock()
			triggers++
			mu.Unlock()
		},
		logger: testLogger(),
	}

	reader.messages <- kafka.Message{Value: []byte(`{"submission_id":"sub-1"}`)}
	reader.messages <- kafka.Message{Value: []byte(`not json`)}
	reader.messages <- kafka.Message{Value: []byte(`{"submission_id":"sub-2"}`)}

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commits() == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, triggers)
}
