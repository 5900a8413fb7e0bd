package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncReachesAllHandlers(t *testing.T) {
	b := NewEventBus()

	var count atomic.Int32
	b.Subscribe(EventTypeTrigger, func(e Event) {
		assert.Equal(t, "shake", e.Data["command"])
		count.Add(1)
	})
	b.SubscribeMultiple([]EventType{EventTypeTrigger, EventTypeBlink}, func(Event) { count.Add(1) })

	b.PublishSync(Event{Type: EventTypeTrigger, Data: map[string]any{"command": "shake"}})
	assert.Equal(t, int32(2), count.Load())

	b.PublishSync(Event{Type: EventTypeModeChanged})
	assert.Equal(t, int32(2), count.Load(), "no handlers for this type")
}

func TestPublishIsAsync(t *testing.T) {
	b := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(1)
	release := make(chan struct{})
	b.Subscribe(EventTypeBlink, func(Event) {
		<-release
		wg.Done()
	})

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: EventTypeBlink})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Publish blocked on a slow handler")
	}
	close(release)
	wg.Wait()
}

func TestClear(t *testing.T) {
	b := NewEventBus()
	var called atomic.Bool
	b.Subscribe(EventTypeShakeStarted, func(Event) { called.Store(true) })
	b.Clear()
	b.PublishSync(Event{Type: EventTypeShakeStarted})
	assert.False(t, called.Load())
}
