package event

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) record(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBus_SubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	c := &collector{}
	bus.Subscribe(ProgressChunk, c.record)

	bus.Publish(Event{Type: ProgressChunk, Data: ProgressChunkData{RequestID: "r1"}})
	bus.Publish(Event{Type: SessionReleased, Data: SessionReleasedData{SessionID: "s1"}})

	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, ProgressChunk, c.events[0].Type)
}

func TestBus_SubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	c := &collector{}
	bus.SubscribeAll(c.record)

	bus.Publish(Event{Type: AgentRegistered})
	bus.Publish(Event{Type: RequestPaused})

	require.Eventually(t, func() bool { return c.count() == 2 }, time.Second, time.Millisecond)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	c := &collector{}
	unsub := bus.Subscribe(ProgressChunk, c.record)

	bus.PublishSync(Event{Type: ProgressChunk})
	unsub()
	bus.PublishSync(Event{Type: ProgressChunk})

	assert.Equal(t, 1, c.count())
}

func TestBus_PublishSyncDeliversInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	c := &collector{}
	bus.Subscribe(ProgressChunk, c.record)

	for i := 0; i < 5; i++ {
		bus.PublishSync(Event{Type: ProgressChunk, Data: ProgressChunkData{RequestID: string(rune('a' + i))}})
	}

	require.Equal(t, 5, c.count())
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.events {
		assert.Equal(t, string(rune('a'+i)), e.Data.(ProgressChunkData).RequestID)
	}
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus()

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	// Publishing after close must not panic or block on the closed
	// pubsub.
	bus.Publish(Event{Type: ProgressChunk})
	bus.PublishSync(Event{Type: ProgressChunk})
}

func TestBus_FeedMirrorsPublishedEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := bus.Feed(ctx)
	require.NoError(t, err)

	bus.PublishSync(Event{Type: SessionReleased, Data: SessionReleasedData{SessionID: "s1"}})

	select {
	case msg := <-feed:
		var decoded struct {
			Type EventType       `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, SessionReleased, decoded.Type)
		assert.Contains(t, string(decoded.Data), "s1")
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no feed message received")
	}
}

func TestBus_FeedPreservesSyncPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := bus.Feed(ctx)
	require.NoError(t, err)

	bus.PublishSync(Event{Type: ProgressChunk, Data: ProgressChunkData{RequestID: "r1"}})
	bus.PublishSync(Event{Type: ProgressComplete, Data: ProgressCompleteData{RequestID: "r1"}})

	want := []EventType{ProgressChunk, ProgressComplete}
	for _, w := range want {
		select {
		case msg := <-feed:
			var decoded struct {
				Type EventType `json:"type"`
			}
			require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
			assert.Equal(t, w, decoded.Type)
			msg.Ack()
		case <-time.After(time.Second):
			t.Fatal("feed message missing")
		}
	}
}
