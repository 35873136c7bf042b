package host

import (
	"sync"

	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// recordingPeer captures every outbound call for assertions.
type recordingPeer struct {
	mu sync.Mutex

	registered     []int
	unregistered   []int
	metadata       []wire.AgentMetadata
	chunks         map[string][][]wire.OutboundPart
	completes      []string
	anchorResolves []string
	completions    []int
	transfers      []string

	chunkErr error
}

func newRecordingPeer() *recordingPeer {
	return &recordingPeer{chunks: make(map[string][][]wire.OutboundPart)}
}

func (p *recordingPeer) RegisterAgent(handle int, ext extension.Identity, agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, handle)
}

func (p *recordingPeer) UnregisterAgent(handle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unregistered = append(p.unregistered, handle)
}

func (p *recordingPeer) UpdateAgentMetadata(handle int, meta wire.AgentMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metadata = append(p.metadata, meta)
}

func (p *recordingPeer) HandleProgressChunk(requestID string, batch []wire.OutboundPart) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks[requestID] = append(p.chunks[requestID], batch)
	return p.chunkErr
}

func (p *recordingPeer) HandleProgressComplete(requestID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completes = append(p.completes, requestID)
}

func (p *recordingPeer) HandleAnchorResolve(requestID, correlationID string, resolved wire.PartDTO) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anchorResolves = append(p.anchorResolves, correlationID)
}

func (p *recordingPeer) RegisterCompletionsProvider(handle int, agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completions = append(p.completions, handle)
}

func (p *recordingPeer) UnregisterCompletionsProvider(handle int) {}

func (p *recordingPeer) TransferActiveChatSession(sessionID, workspaceURI string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, sessionID)
}

func (p *recordingPeer) chunksFor(requestID string) [][]wire.OutboundPart {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]wire.OutboundPart, len(p.chunks[requestID]))
	copy(out, p.chunks[requestID])
	return out
}

func (p *recordingPeer) metadataUpdates() []wire.AgentMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.AgentMetadata, len(p.metadata))
	copy(out, p.metadata)
	return out
}
