package events

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until ctx is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	r.cancel()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingDispatcher struct {
	events []domain.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e domain.Event) int {
	d.events = append(d.events, e)
	return 1
}

func TestKafkaConsumer_DispatchesAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		pending: []kafka.Message{
			{Offset: 1, Value: []byte(`{"event":"ticket.created","tenantId":"acme","ticket":{"id":"t-1"}}`)},
			{Offset: 2, Value: []byte(`not json`)},
			{Offset: 3, Value: []byte(`{"event":"user.created","user":{"id":"u-1"}}`)},
		},
	}
	dispatcher := &recordingDispatcher{}
	c := &KafkaConsumer{
		reader:        reader,
		dispatcher:    dispatcher,
		defaultTenant: "default",
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	require.NoError(t, c.Run(ctx))

	require.Len(t, dispatcher.events, 2)
	assert.Equal(t, domain.EventTicketCreated, dispatcher.events[0].Type)
	assert.Equal(t, "default", dispatcher.events[1].TenantID)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed, "malformed messages are committed too")
}

func TestNewKafkaConsumer_RequiresSettings(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewKafkaConsumer(nil, "group", "topic", &recordingDispatcher{}, "default", logger)
	assert.Error(t, err)
	_, err = NewKafkaConsumer([]string{"localhost:9092"}, "", "topic", &recordingDispatcher{}, "default", logger)
	assert.Error(t, err)
	_, err = NewKafkaConsumer([]string{"localhost:9092"}, "group", "", &recordingDispatcher{}, "default", logger)
	assert.Error(t, err)
}
