package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/chathost/internal/logging"
	"github.com/opencode-ai/chathost/internal/part"
	"github.com/opencode-ai/chathost/internal/session"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// ClosedError is returned by every append on a closed stream. A handler
// appending after its request completed is a programming error worth
// surfacing, not silently dropping.
type ClosedError struct {
	RequestID string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("response stream for request %q is closed", e.RequestID)
}

// AnchorSink receives late-resolved anchor values, correlated by id.
type AnchorSink func(correlationID string, resolved wire.PartDTO)

// Options configures a Stream.
type Options struct {
	RequestID string
	Codec     *part.Codec
	Transmit  Transmit
	// FlushDelay overrides the batcher's flush tick; zero means default.
	FlushDelay time.Duration
	// Variables maps variable names to their already-resolved references,
	// for reference fan-out.
	Variables map[string][]part.Reference
	// SessionStore receives anchor-resolution cancellation sources so a
	// resolve outliving its request is still cancelled with the session.
	SessionStore *session.Store
	// ResolveAnchor delivers late anchor resolutions. May be nil.
	ResolveAnchor AnchorSink
}

// Stream is the per-request, single-use, append-only reporting surface handed
// to agent handlers. Fragments are encoded and micro-batched; ordering within
// the stream is preserved. The stream moves from open to closed exactly once.
type Stream struct {
	requestID     string
	codec         *part.Codec
	batcher       *Batcher
	variables     map[string][]part.Reference
	sessionStore  *session.Store
	resolveAnchor AnchorSink

	mu            sync.Mutex
	closed        bool
	start         time.Time
	firstProgress time.Time
	nextSubHandle int
}

// New creates a stream for one request.
func New(opts Options) *Stream {
	codec := opts.Codec
	if codec == nil {
		codec = part.NewCodec(nil)
	}
	return &Stream{
		requestID:     opts.RequestID,
		codec:         codec,
		batcher:       NewBatcher(opts.Transmit, opts.FlushDelay),
		variables:     opts.Variables,
		sessionStore:  opts.SessionStore,
		resolveAnchor: opts.ResolveAnchor,
		start:         time.Now(),
	}
}

// Append reports one fragment. Task-bearing progress, resolvable anchors and
// variable references are routed through their dedicated paths.
func (s *Stream) Append(p part.Part) error {
	switch v := p.(type) {
	case part.Progress:
		if v.Task != nil {
			return s.AppendWithTask(v)
		}
	case part.Anchor:
		if v.Resolve != nil {
			return s.AppendAnchor(v)
		}
	case part.Reference:
		if v.VariableName != "" && v.URI == "" {
			return s.AppendReference(v)
		}
	}

	if err := s.guard(); err != nil {
		return err
	}

	dto, err := s.codec.Encode(p)
	if err != nil {
		return err
	}

	s.markProgress(p)
	s.batcher.Push(wire.OutboundPart{Part: dto})
	return nil
}

// AppendWithTask reports a long-running progress part. The placeholder is
// transmitted immediately under a fresh sub-handle; the task runs
// concurrently, reporting secondary updates under the same sub-handle, and
// its settled value is sent as the terminal result. The task is deliberately
// not awaited here: the peer sees the placeholder independent of task
// latency.
func (s *Stream) AppendWithTask(p part.Progress) error {
	if p.Task == nil {
		return s.Append(part.Progress{Content: p.Content})
	}

	if err := s.guard(); err != nil {
		return err
	}

	dto, err := s.codec.Encode(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	handle := s.nextSubHandle
	s.nextSubHandle++
	s.mu.Unlock()

	sent := s.batcher.PushWait(wire.OutboundPart{Part: dto, SubHandle: &handle})

	go func() {
		// The placeholder must reach the wire before any follow-up
		// tagged with the same sub-handle.
		<-sent

		report := func(update part.Progress) {
			updateDTO, encErr := s.codec.Encode(part.Progress{Content: update.Content})
			if encErr != nil {
				logging.Warn().Err(encErr).Str("requestId", s.requestID).Msg("dropping malformed task update")
				return
			}
			h := handle
			s.batcher.Push(wire.OutboundPart{Part: updateDTO, SubHandle: &h})
		}

		content, taskErr := p.Task(context.Background(), report)
		if taskErr != nil {
			logging.Warn().Err(taskErr).Str("requestId", s.requestID).Msg("progress task failed")
			content = p.Content
		}

		h := handle
		s.batcher.Push(wire.OutboundPart{
			Part:      &wire.ProgressTaskResultDTO{Type: wire.TypeProgressTaskEnd, Content: content},
			SubHandle: &h,
		})
	}()

	return nil
}

// AppendReference reports a used reference. When the reference names a
// variable and carries no target of its own, the variable's already-resolved
// references are fanned out individually; an unknown variable is a silent
// no-op, since the peer may legitimately reference a variable that went
// stale.
func (s *Stream) AppendReference(ref part.Reference) error {
	if err := s.guard(); err != nil {
		return err
	}

	if ref.VariableName == "" || ref.URI != "" {
		dto, err := s.codec.Encode(ref)
		if err != nil {
			return err
		}
		s.batcher.Push(wire.OutboundPart{Part: dto})
		return nil
	}

	refs, ok := s.variables[ref.VariableName]
	if !ok {
		return nil
	}

	for _, r := range refs {
		dto, err := s.codec.Encode(part.Reference{
			URI:          r.URI,
			Range:        r.Range,
			VariableName: ref.VariableName,
			IconPath:     ref.IconPath,
		})
		if err != nil {
			return err
		}
		s.batcher.Push(wire.OutboundPart{Part: dto})
	}
	return nil
}

// AppendAnchor reports an anchor. A resolvable anchor is sent eagerly under a
// fresh correlation id and its resolved form follows asynchronously; the
// resolution's cancellation is tied to the session store, not the request, so
// it is cancelled when the session is released even if the request has long
// finished.
func (s *Stream) AppendAnchor(a part.Anchor) error {
	if err := s.guard(); err != nil {
		return err
	}

	dto, err := s.codec.Encode(a)
	if err != nil {
		return err
	}

	if a.Resolve == nil {
		s.batcher.Push(wire.OutboundPart{Part: dto})
		return nil
	}

	correlationID := ulid.Make().String()
	anchorDTO := dto.(*wire.AnchorDTO)
	anchorDTO.ResolveID = correlationID
	s.batcher.Push(wire.OutboundPart{Part: anchorDTO})

	ctx, cancel := context.WithCancel(context.Background())
	if s.sessionStore != nil {
		s.sessionStore.Add(session.DisposeFunc(cancel))
	}

	go func() {
		resolved, resolveErr := a.Resolve(ctx)
		if resolveErr != nil || resolved == nil {
			if resolveErr != nil && ctx.Err() == nil {
				logging.Debug().Err(resolveErr).Str("requestId", s.requestID).Msg("anchor resolution failed")
			}
			return
		}
		resolved.Resolve = nil
		resolvedDTO, encErr := s.codec.Encode(*resolved)
		if encErr != nil {
			logging.Warn().Err(encErr).Str("requestId", s.requestID).Msg("resolved anchor failed to encode")
			return
		}
		if s.resolveAnchor != nil {
			s.resolveAnchor(correlationID, resolvedDTO)
		}
	}()

	return nil
}

// Close marks the stream closed and flushes any pending batch. Idempotent;
// in-flight task results still settle normally.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.batcher.Flush()
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Timings returns latency instrumentation for the request. The first-progress
// latency is zero until real content has been appended.
func (s *Stream) Timings() wire.Timings {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := wire.Timings{TotalElapsed: time.Since(s.start).Milliseconds()}
	if !s.firstProgress.IsZero() {
		t.FirstProgressLatency = s.firstProgress.Sub(s.start).Milliseconds()
	}
	return t
}

// BatchErr surfaces the most recent transmit failure, if any.
func (s *Stream) BatchErr() error {
	return s.batcher.Err()
}

func (s *Stream) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &ClosedError{RequestID: s.requestID}
	}
	return nil
}

// markProgress records the first time real content reaches the stream.
func (s *Stream) markProgress(p part.Part) {
	switch p.(type) {
	case part.Markdown, part.MarkdownVuln, part.ToolPreparation:
	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstProgress.IsZero() {
		s.firstProgress = time.Now()
	}
}
