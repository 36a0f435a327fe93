package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", OutputPath: "stderr"})
	require.NoError(t, err)
	return log
}

func TestMemoryBusExactDelivery(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	var received []*Event
	_, err := b.Subscribe("session.status", func(ctx context.Context, e *Event) error {
		received = append(received, e)
		return nil
	})
	require.NoError(t, err)

	event := NewEvent("session.status", "test", map[string]string{"state": "ready"})
	require.NoError(t, b.Publish(context.Background(), "session.status", event))

	require.Len(t, received, 1)
	assert.Equal(t, event.ID, received[0].ID)
}

func TestMemoryBusNoDeliveryToOtherSubjects(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	called := false
	_, err := b.Subscribe("session.status", func(ctx context.Context, e *Event) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "session.error", NewEvent("session.error", "test", nil)))
	assert.False(t, called)
}

func TestMemoryBusWildcards(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		match   bool
	}{
		{"session.*", "session.status", true},
		{"session.*", "session.status.extra", false},
		{"session.>", "session.status", true},
		{"session.>", "session.tool_call.update", true},
		{"session.>", "other.status", false},
		{"*.status", "session.status", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.subject, func(t *testing.T) {
			b := NewMemoryEventBus(testLogger(t))
			defer b.Close()

			delivered := false
			_, err := b.Subscribe(tt.pattern, func(ctx context.Context, e *Event) error {
				delivered = true
				return nil
			})
			require.NoError(t, err)

			require.NoError(t, b.Publish(context.Background(), tt.subject, NewEvent(tt.subject, "test", nil)))
			assert.Equal(t, tt.match, delivered)
		})
	}
}

func TestMemoryBusHandlerErrorIsolated(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	var mu sync.Mutex
	var order []string

	_, err := b.Subscribe("session.status", func(ctx context.Context, e *Event) error {
		mu.Lock()
		order = append(order, "failing")
		mu.Unlock()
		return errors.New("handler blew up")
	})
	require.NoError(t, err)

	_, err = b.Subscribe("session.*", func(ctx context.Context, e *Event) error {
		mu.Lock()
		order = append(order, "healthy")
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	// The failing handler must not prevent delivery to the healthy one, and
	// Publish must not surface the handler error.
	require.NoError(t, b.Publish(context.Background(), "session.status", NewEvent("session.status", "test", nil)))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, order, 2)
}

func TestMemoryBusOrderPreservedPerSubscriber(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	var got []string
	_, err := b.Subscribe("session.message_chunk", func(ctx context.Context, e *Event) error {
		got = append(got, e.Data.(string))
		return nil
	})
	require.NoError(t, err)

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(context.Background(), "session.message_chunk",
			NewEvent("session.message_chunk", "test", text)))
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	called := 0
	sub, err := b.Subscribe("session.status", func(ctx context.Context, e *Event) error {
		called++
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sub.IsValid())

	require.NoError(t, b.Publish(context.Background(), "session.status", NewEvent("session.status", "test", nil)))
	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())
	require.NoError(t, b.Publish(context.Background(), "session.status", NewEvent("session.status", "test", nil)))

	assert.Equal(t, 1, called)
}

func TestMemoryBusClosedRejectsPublish(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	b.Close()

	assert.False(t, b.IsConnected())
	err := b.Publish(context.Background(), "session.status", NewEvent("session.status", "test", nil))
	assert.Error(t, err)

	_, err = b.Subscribe("session.status", func(ctx context.Context, e *Event) error { return nil })
	assert.Error(t, err)
}
