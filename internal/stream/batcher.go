// Package stream implements the per-request response stream: an append-only
// reporting surface whose fragments are micro-batched into one outbound
// message per flush tick.
package stream

import (
	"sync"
	"time"

	"github.com/opencode-ai/chathost/internal/logging"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// DefaultFlushDelay is how long a scheduled flush waits before draining the
// queue. Long enough to coalesce a synchronous burst of appends, short enough
// to be invisible to the peer.
const DefaultFlushDelay = time.Millisecond

// Transmit delivers one batched chunk of parts to the peer.
type Transmit func(batch []wire.OutboundPart) error

// Batcher coalesces bursts of parts for one request into single outbound
// calls. The first push into an empty queue schedules a flush; pushes landing
// before the flush runs join the same batch, in order. Parts are never
// dropped or duplicated.
type Batcher struct {
	mu        sync.Mutex
	queue     []wire.OutboundPart
	waiters   []chan struct{}
	scheduled bool
	delay     time.Duration
	transmit  Transmit
	lastErr   error

	// flushMu serializes drain+transmit. Without it a push landing during
	// a slow transmit could schedule a second flush whose transmit
	// overtakes the first, reordering parts on the wire.
	flushMu sync.Mutex
}

// NewBatcher creates a batcher delivering through transmit. A non-positive
// delay falls back to DefaultFlushDelay.
func NewBatcher(transmit Transmit, delay time.Duration) *Batcher {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	return &Batcher{transmit: transmit, delay: delay}
}

// Push queues one part for the next flush.
func (b *Batcher) Push(p wire.OutboundPart) {
	b.push(p, nil)
}

// PushWait queues one part and returns a channel that is closed once the
// flush containing it has completed, whether or not the transmit succeeded.
// Task sub-reporters use this to know their placeholder has been sent.
func (b *Batcher) PushWait(p wire.OutboundPart) <-chan struct{} {
	done := make(chan struct{})
	b.push(p, done)
	return done
}

func (b *Batcher) push(p wire.OutboundPart, done chan struct{}) {
	b.mu.Lock()
	b.queue = append(b.queue, p)
	if done != nil {
		b.waiters = append(b.waiters, done)
	}
	schedule := !b.scheduled
	if schedule {
		b.scheduled = true
	}
	b.mu.Unlock()

	if schedule {
		go b.flushAfter(b.delay)
	}
}

func (b *Batcher) flushAfter(delay time.Duration) {
	time.Sleep(delay)

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.queue
	waiters := b.waiters
	b.queue = nil
	b.waiters = nil
	// Pushes landing from here on start a new batch.
	b.scheduled = false
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	err := b.transmit(batch)

	// Waiters are released even on failure so no caller is left stuck
	// waiting on a dead transport. The error itself is kept observable.
	for _, w := range waiters {
		close(w)
	}

	if err != nil {
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
		logging.Warn().Err(err).Int("parts", len(batch)).Msg("progress batch transmit failed")
	}
}

// Flush drains the queue immediately instead of waiting for the scheduled
// tick. The stream calls this on close so the final chunk goes out before
// the completion signal.
func (b *Batcher) Flush() {
	b.flushAfter(0)
}

// Err returns the most recent transmit failure, if any.
func (b *Batcher) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}
