package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TemirB/shop-orders/internal/observability"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafkago.Message
	errs      []error
	committed []int64
	done      func()
}

func (r *fakeReader) Config() kafkago.ReaderConfig {
	return kafkago.ReaderConfig{Brokers: []string{"localhost:9092"}, GroupID: "g", Topic: "orders.refresh"}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafkago.Message{}, err
	}
	if len(r.msgs) == 0 {
		r.done()
		return kafkago.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type handlerFunc func(ctx context.Context, msg kafkago.Message) error

func (f handlerFunc) Handle(ctx context.Context, msg kafkago.Message) error { return f(ctx, msg) }

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		msgs: []kafkago.Message{{Offset: 0}, {Offset: 1}, {Offset: 2}, {Offset: 3}},
		errs: []error{errors.New("Request Timed Out"), errors.New("rebalance in progress")},
		done: cancel,
	}
	var handled []int64
	var mu sync.Mutex
	h := handlerFunc(func(_ context.Context, msg kafkago.Message) error {
		mu.Lock()
		handled = append(handled, msg.Offset)
		mu.Unlock()
		if msg.Offset == 1 {
			return errors.New("refresh failed")
		}
		return nil
	})

	m := observability.NewInmem(10)
	c := NewConsumer(h, reader, 3, m, zaptest.NewLogger(t))
	var backoffs []time.Duration
	c.backoff = func(_ context.Context, d time.Duration) { backoffs = append(backoffs, d) }

	c.Start(ctx)

	require.Equal(t, []int64{0, 2, 3}, reader.committed)
	require.Equal(t, []int64{0, 1, 2, 3}, handled)
	require.Equal(t, []time.Duration{10 * time.Second, 500 * time.Millisecond, 200 * time.Millisecond}, backoffs)
}

func TestConsumerStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &fakeReader{msgs: []kafkago.Message{{Offset: 0}}, done: func() {}}
	c := NewConsumer(handlerFunc(func(context.Context, kafkago.Message) error {
		t.Fatal("handler must not run")
		return nil
	}), reader, 0, nil, zaptest.NewLogger(t))

	c.Start(ctx)
	require.Empty(t, reader.committed)
}

func TestIsBenignFetchTimeout(t *testing.T) {
	require.True(t, isBenignFetchTimeout(errors.New("[7] Request Timed Out: the request exceeded the user-specified time limit")))
	require.True(t, isBenignFetchTimeout(errors.New("no messages received from kafka within the allocated time")))
	require.False(t, isBenignFetchTimeout(errors.New("connection refused")))
}
