package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/internal/logging"
	"github.com/opencode-ai/chathost/internal/model"
	"github.com/opencode-ai/chathost/internal/part"
	"github.com/opencode-ai/chathost/internal/session"
	"github.com/opencode-ai/chathost/internal/stream"
	"github.com/opencode-ai/chathost/internal/transcript"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// DefaultGracePeriod is how long a cancelled handler is given to finish
// cleanly before the coordinator resolves without it.
const DefaultGracePeriod = time.Second

// CoordinatorOptions wires a Coordinator to its collaborators. Registry,
// Models, Sessions, Peer and Bus are required; the rest are optional.
type CoordinatorOptions struct {
	Registry *Registry
	Models   *model.Registry
	Sessions *session.Registry
	Peer     Peer
	Bus      *event.Bus
	Codec    *part.Codec

	Documents   DocumentResolver
	ToolSource  ToolSource
	Diagnostics DiagnosticsSource

	// Archive, when set, records every completed invocation.
	Archive *transcript.Archive

	GracePeriod time.Duration
	FlushDelay  time.Duration
}

// Coordinator drives one invocation end to end: context building, model
// resolution, in-flight bookkeeping, handler invocation, cancellation racing
// and guaranteed teardown. Every exit path closes the stream and removes the
// in-flight entry.
type Coordinator struct {
	registry    *Registry
	models      *model.Registry
	sessions    *session.Registry
	peer        Peer
	bus         *event.Bus
	codec       *part.Codec
	documents   DocumentResolver
	toolSource  ToolSource
	diagnostics DiagnosticsSource
	archive     *transcript.Archive
	grace       time.Duration
	flushDelay  time.Duration

	inFlight *inFlightSet
}

// NewCoordinator creates a coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	codec := opts.Codec
	if codec == nil {
		codec = part.NewCodec(nil)
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Coordinator{
		registry:    opts.Registry,
		models:      opts.Models,
		sessions:    opts.Sessions,
		peer:        opts.Peer,
		bus:         opts.Bus,
		codec:       codec,
		documents:   opts.Documents,
		toolSource:  opts.ToolSource,
		diagnostics: opts.Diagnostics,
		archive:     opts.Archive,
		grace:       grace,
		flushDelay:  opts.FlushDelay,
		inFlight:    newInFlightSet(opts.Bus),
	}
}

// InFlight reports whether a request is currently being processed.
func (c *Coordinator) InFlight(requestID string) bool {
	_, ok := c.inFlight.get(requestID)
	return ok
}

// InFlightCount returns the number of active requests.
func (c *Coordinator) InFlightCount() int {
	return c.inFlight.len()
}

// SetRequestPaused flips the pause state of an in-flight request. Finished
// requests are tolerated silently.
func (c *Coordinator) SetRequestPaused(requestID string, isPaused bool) {
	c.inFlight.setPaused(requestID, isPaused)
}

// SetRequestTools replaces the tool selection of an in-flight request.
// Finished requests are tolerated silently.
func (c *Coordinator) SetRequestTools(requestID string, tools map[string]bool) {
	c.inFlight.setTools(requestID, tools)
}

// Invoke runs one invocation. The returned error is non-nil only for
// protocol violations (unknown agent handle); every other failure is
// normalized into the result's errorDetails so the caller always receives a
// well-formed envelope. Cancellation of ctx resolves with an empty result.
func (c *Coordinator) Invoke(ctx context.Context, handle int, draft wire.RequestDraft, history []wire.HistoryTurn) (res wire.InvocationResult, _ error) {
	agent, ok := c.registry.Agent(handle)
	if !ok {
		return wire.InvocationResult{}, &UnknownAgentError{Handle: handle}
	}
	started := time.Now()

	req, err := reviveRequest(ctx, draft, agent.Extension, c.documents)
	if err != nil {
		return faultResult(agent.Extension, fmt.Errorf("building request context: %w", err), nil), nil
	}

	if c.toolSource != nil {
		req.Tools = filterTools(c.toolSource.Tools(agent.Extension), draft.UserSelectedTools)
	}

	if err := c.resolveModel(req, draft.UserSelectedModelID); err != nil {
		return faultResult(agent.Extension, err, nil), nil
	}

	ictx := &InvocationContext{History: buildHistory(c.codec, history)}
	if c.diagnostics != nil {
		ictx.Diagnostics = c.diagnostics.Diagnostics()
	}

	var (
		recordMu sync.Mutex
		recorded []wire.PartDTO
	)

	store := c.sessions.Store(draft.SessionID)
	out := stream.New(stream.Options{
		RequestID:    draft.RequestID,
		Codec:        c.codec,
		FlushDelay:   c.flushDelay,
		Variables:    variableReferences(req),
		SessionStore: store,
		Transmit: func(batch []wire.OutboundPart) error {
			if c.archive != nil {
				recordMu.Lock()
				for _, p := range batch {
					recorded = append(recorded, p.Part)
				}
				recordMu.Unlock()
			}
			return c.peer.HandleProgressChunk(draft.RequestID, batch)
		},
		ResolveAnchor: func(correlationID string, resolved wire.PartDTO) {
			c.peer.HandleAnchorResolve(draft.RequestID, correlationID, resolved)
		},
	})

	entry := &InFlightRequest{
		RequestID: draft.RequestID,
		Request:   req,
		Extension: agent.Extension,
		tools:     draft.UserSelectedTools,
	}
	ictx.InFlight = entry
	c.inFlight.add(entry)

	defer func() {
		c.inFlight.remove(draft.RequestID)
		out.Close()
		c.peer.HandleProgressComplete(draft.RequestID)

		if c.archive == nil {
			return
		}
		// Close flushed the batcher, so the recorded parts are complete.
		recordMu.Lock()
		parts := recorded
		recordMu.Unlock()
		rec := transcript.Record{
			RequestID:   draft.RequestID,
			SessionID:   draft.SessionID,
			AgentID:     agent.ID,
			Message:     req.Message,
			Response:    parts,
			Result:      res,
			StartedAt:   started,
			CompletedAt: time.Now(),
		}
		if err := c.archive.Append(ctx, rec); err != nil {
			logging.Warn().Err(err).Str("requestId", draft.RequestID).Msg("failed to archive invocation")
		}
	}()

	type outcome struct {
		result *wire.InvocationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, handlerErr := agent.Handler(ctx, req, ictx, out)
		done <- outcome{result: result, err: handlerErr}
	}()

	var settled outcome
	select {
	case settled = <-done:
	case <-ctx.Done():
		// A cancelled handler gets the grace period to finish cleanly,
		// and one more grace period after that before the coordinator
		// moves on without it. Cancellation is not a failure.
		timer := time.NewTimer(2 * c.grace)
		defer timer.Stop()
		select {
		case settled = <-done:
		case <-timer.C:
			return wire.InvocationResult{Timings: timingsOf(out)}, nil
		}
	}

	if settled.err != nil {
		return faultResult(agent.Extension, settled.err, timingsOf(out)), nil
	}

	return c.finishResult(agent.Extension, settled.result, out), nil
}

// resolveModel binds the request's model, preferring the user's explicit
// selection over the configured default.
func (c *Coordinator) resolveModel(req *Request, selectedID string) error {
	if c.models == nil {
		return nil
	}
	var (
		m   model.Model
		err error
	)
	if selectedID != "" {
		m, err = c.models.Get(selectedID)
	} else {
		m, err = c.models.Default()
	}
	if err != nil {
		return err
	}
	req.Model = m
	return nil
}

// finishResult validates and normalizes a successful handler result.
func (c *Coordinator) finishResult(ext extension.Identity, result *wire.InvocationResult, out *stream.Stream) wire.InvocationResult {
	timings := timingsOf(out)
	if result == nil {
		return wire.InvocationResult{Timings: timings}
	}

	final := *result
	final.Timings = timings

	if len(final.Metadata) > 0 && !json.Valid(final.Metadata) {
		// An unserializable payload never reaches the wire. The
		// incomplete flag stays unset on this branch.
		return wire.InvocationResult{
			Timings:      timings,
			ErrorDetails: &wire.ErrorDetails{Message: "result metadata failed to serialize"},
		}
	}

	if final.ErrorDetails != nil {
		if err := checkErrorDetails(ext, final.ErrorDetails); err != nil {
			return faultResult(ext, err, timings)
		}
		final.ErrorDetails.ResponseIsIncomplete = true
	}

	return final
}

// checkErrorDetails gates the privileged error fields behind their matching
// capabilities. A violation fails the whole call rather than forwarding
// stripped fields.
func checkErrorDetails(ext extension.Identity, details *wire.ErrorDetails) error {
	if details.IsQuotaExceeded || details.ResponseIsRedacted {
		if err := ext.Require(extension.CapPrivateChat); err != nil {
			return err
		}
	}
	if len(details.ConfirmationButtons) > 0 {
		if err := ext.Require(extension.CapConfirmation); err != nil {
			return err
		}
	}
	return nil
}

// faultResult normalizes any failure into a well-formed result envelope.
// Model errors are unwrapped to their cause and quota exhaustion is
// classified explicitly; nothing crosses the peer boundary as a raw error.
func faultResult(ext extension.Identity, err error, timings *wire.Timings) wire.InvocationResult {
	cause := err
	var modelErr *model.Error
	if errors.As(err, &modelErr) && modelErr.Cause != nil {
		cause = modelErr.Cause
	}

	var quotaErr *model.QuotaExceededError
	isQuota := errors.As(cause, &quotaErr)
	if isQuota && !ext.Has(extension.CapPrivateChat) {
		isQuota = false
	}

	logging.Debug().Err(err).Str("extension", ext.ID).Msg("invocation faulted")
	return wire.InvocationResult{
		Timings: timings,
		ErrorDetails: &wire.ErrorDetails{
			Message:              cause.Error(),
			ResponseIsIncomplete: true,
			IsQuotaExceeded:      isQuota,
		},
	}
}

func timingsOf(out *stream.Stream) *wire.Timings {
	t := out.Timings()
	return &t
}
