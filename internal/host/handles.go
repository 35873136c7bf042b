package host

import "sync/atomic"

// HandleKind namespaces handle pools so each provider family issues its own
// monotonic sequence.
type HandleKind int

const (
	KindAgent HandleKind = iota
	KindDetector
	KindRelatedFiles
	KindSessionItems
	KindSessionContent
	KindCompletions
	kindCount
)

// HandleAllocator issues process-local integer handles. Handles are
// monotonic and collision-free within a kind for the life of the process.
type HandleAllocator struct {
	counters [kindCount]atomic.Int64
}

// NewHandleAllocator creates an allocator with all pools starting at zero.
func NewHandleAllocator() *HandleAllocator {
	return &HandleAllocator{}
}

// Next returns the next handle for the given kind.
func (a *HandleAllocator) Next(kind HandleKind) int {
	return int(a.counters[kind].Add(1) - 1)
}
