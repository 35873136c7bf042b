package host

import (
	"context"

	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// Peer is the outbound half of the protocol. The host calls it to mirror
// registration state and deliver streamed progress; the concrete
// implementation lives in the transport layer.
type Peer interface {
	RegisterAgent(handle int, ext extension.Identity, agentID string)
	UnregisterAgent(handle int)
	UpdateAgentMetadata(handle int, meta wire.AgentMetadata)

	HandleProgressChunk(requestID string, batch []wire.OutboundPart) error
	HandleProgressComplete(requestID string)
	HandleAnchorResolve(requestID, correlationID string, resolved wire.PartDTO)

	RegisterCompletionsProvider(handle int, agentID string)
	UnregisterCompletionsProvider(handle int)

	TransferActiveChatSession(sessionID, workspaceURI string)
}

// Document is the resolved form of a workspace document reference.
type Document struct {
	URI       string
	Text      string
	LineCount int
}

// DocumentResolver resolves document URIs carried in request locations.
type DocumentResolver interface {
	Document(ctx context.Context, uri string) (*Document, error)
}

// Tool is one tool exposed to an agent invocation.
type Tool struct {
	Name        string
	Description string
}

// ToolSource lists the tools available to a given extension.
type ToolSource interface {
	Tools(ext extension.Identity) []Tool
}

// Diagnostic is one workspace problem surfaced to handlers for context.
type Diagnostic struct {
	URI      string
	Message  string
	Severity string
}

// DiagnosticsSource exposes current workspace diagnostics.
type DiagnosticsSource interface {
	Diagnostics() []Diagnostic
}
