package event

import "github.com/opencode-ai/chathost/pkg/wire"

// EventType represents the type of event.
type EventType string

const (
	AgentRegistered      EventType = "agent.registered"
	AgentUnregistered    EventType = "agent.unregistered"
	AgentMetadataUpdated EventType = "agent.metadata"

	CompletionsRegistered   EventType = "completions.registered"
	CompletionsUnregistered EventType = "completions.unregistered"

	ProgressChunk    EventType = "progress.chunk"
	ProgressComplete EventType = "progress.complete"
	AnchorResolved   EventType = "progress.anchorResolved"

	RequestPaused       EventType = "request.paused"
	RequestToolsChanged EventType = "request.tools"
	SessionReleased     EventType = "session.released"
	SessionTransferred  EventType = "session.transferred"
)

// Event is one published event.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// AgentRegisteredData announces a newly registered agent to the peer.
// Metadata starts empty; updates arrive as AgentMetadataUpdated events.
type AgentRegisteredData struct {
	Handle      int    `json:"handle"`
	ExtensionID string `json:"extensionId"`
	AgentID     string `json:"agentId"`
}

// AgentUnregisteredData announces an agent disposal.
type AgentUnregisteredData struct {
	Handle int `json:"handle"`
}

// AgentMetadataUpdatedData carries one coalesced metadata push.
type AgentMetadataUpdatedData struct {
	Handle   int                `json:"handle"`
	Metadata wire.AgentMetadata `json:"metadata"`
}

// CompletionsRegisteredData announces a completion provider registration.
type CompletionsRegisteredData struct {
	Handle  int    `json:"handle"`
	AgentID string `json:"agentId"`
}

// CompletionsUnregisteredData announces a completion provider disposal.
type CompletionsUnregisteredData struct {
	Handle int `json:"handle"`
}

// ProgressChunkData is one batched chunk of response parts for a request.
type ProgressChunkData struct {
	RequestID string              `json:"requestId"`
	Parts     []wire.OutboundPart `json:"parts"`
}

// ProgressCompleteData marks the end of a request's response stream.
type ProgressCompleteData struct {
	RequestID string `json:"requestId"`
}

// AnchorResolvedData carries the late-resolved value of an anchor part.
type AnchorResolvedData struct {
	RequestID     string       `json:"requestId"`
	CorrelationID string       `json:"correlationId"`
	Resolved      wire.PartDTO `json:"resolved"`
}

// RequestPausedData signals a pause state change on an in-flight request.
type RequestPausedData struct {
	RequestID string `json:"requestId"`
	IsPaused  bool   `json:"isPaused"`
}

// RequestToolsChangedData signals a tool-set change on an in-flight request.
type RequestToolsChangedData struct {
	RequestID string          `json:"requestId"`
	Tools     map[string]bool `json:"tools"`
}

// SessionReleasedData announces that a session's resources were disposed.
type SessionReleasedData struct {
	SessionID string `json:"sessionId"`
}

// SessionTransferredData announces a chat session moving to another workspace.
type SessionTransferredData struct {
	SessionID    string `json:"sessionId"`
	WorkspaceURI string `json:"workspaceUri"`
}
