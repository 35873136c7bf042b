package server

import (
	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// BusPeer implements the outbound peer contract by publishing to the event
// bus, which the SSE feed relays to the connected peer. Progress chunks are
// published synchronously so parts for one request hit the feed in stream
// order.
type BusPeer struct {
	bus *event.Bus
}

// NewBusPeer creates a peer backed by the given bus.
func NewBusPeer(bus *event.Bus) *BusPeer {
	return &BusPeer{bus: bus}
}

func (p *BusPeer) RegisterAgent(handle int, ext extension.Identity, agentID string) {
	// Registration events are published by the registry itself; nothing to
	// add here for the bus transport.
}

func (p *BusPeer) UnregisterAgent(handle int) {}

func (p *BusPeer) UpdateAgentMetadata(handle int, meta wire.AgentMetadata) {
	p.bus.Publish(event.Event{
		Type: event.AgentMetadataUpdated,
		Data: event.AgentMetadataUpdatedData{Handle: handle, Metadata: meta},
	})
}

func (p *BusPeer) HandleProgressChunk(requestID string, batch []wire.OutboundPart) error {
	p.bus.PublishSync(event.Event{
		Type: event.ProgressChunk,
		Data: event.ProgressChunkData{RequestID: requestID, Parts: batch},
	})
	return nil
}

func (p *BusPeer) HandleProgressComplete(requestID string) {
	p.bus.PublishSync(event.Event{
		Type: event.ProgressComplete,
		Data: event.ProgressCompleteData{RequestID: requestID},
	})
}

func (p *BusPeer) HandleAnchorResolve(requestID, correlationID string, resolved wire.PartDTO) {
	p.bus.Publish(event.Event{
		Type: event.AnchorResolved,
		Data: event.AnchorResolvedData{
			RequestID:     requestID,
			CorrelationID: correlationID,
			Resolved:      resolved,
		},
	})
}

func (p *BusPeer) RegisterCompletionsProvider(handle int, agentID string) {}

func (p *BusPeer) UnregisterCompletionsProvider(handle int) {}

func (p *BusPeer) TransferActiveChatSession(sessionID, workspaceURI string) {
	// The transfer event is published by the registry; the bus transport has
	// no extra call to make.
}
