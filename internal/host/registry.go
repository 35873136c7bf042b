package host

import (
	"context"
	"sync"

	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/internal/logging"
	"github.com/opencode-ai/chathost/internal/stream"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// Handler produces a chat response for one request. A nil result with a nil
// error is a legitimate empty completion.
type Handler func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error)

// FollowupProvider suggests next prompts after a completed turn.
type FollowupProvider func(ctx context.Context, result wire.InvocationResult, history []Turn) ([]wire.Followup, error)

// TitleProvider names a conversation from its history.
type TitleProvider func(ctx context.Context, history []Turn) (string, error)

// Summarizer condenses a conversation's history.
type Summarizer func(ctx context.Context, history []Turn) (string, error)

// CompletionProvider supplies slash and variable completions.
type CompletionProvider func(ctx context.Context, query string) ([]wire.CompletionItem, error)

// FeedbackHandler receives a user vote on a finished response.
type FeedbackHandler func(ctx context.Context, requestID string, vote string)

// ActionHandler receives a user action taken on a finished response.
type ActionHandler func(ctx context.Context, requestID string, action string)

// DetectionProvider picks the participant best suited to a raw request.
type DetectionProvider func(ctx context.Context, draft wire.RequestDraft) (*wire.DetectedParticipant, error)

// RelatedFilesProvider surfaces files relevant to a request.
type RelatedFilesProvider func(ctx context.Context, draft wire.RequestDraft) ([]wire.RelatedFile, error)

// SessionItemProvider lists restorable chat sessions for a provider.
type SessionItemProvider func(ctx context.Context) ([]SessionItem, error)

// SessionContentProvider loads one restorable session's turns.
type SessionContentProvider func(ctx context.Context, sessionID string) ([]wire.HistoryTurn, error)

// SessionItem is one restorable chat session entry.
type SessionItem struct {
	SessionID string `json:"sessionId"`
	Label     string `json:"label"`
	Tooltip   string `json:"tooltip,omitempty"`
}

// Agent is one registered chat participant.
type Agent struct {
	Handle    int
	ID        string
	Extension extension.Identity
	Handler   Handler

	Followups   FollowupProvider
	Title       TitleProvider
	Summary     Summarizer
	Completions CompletionProvider
	Feedback    FeedbackHandler
	Action      ActionHandler

	controller *AgentController
}

// Controller exposes the agent's mutable metadata surface.
func (a *Agent) Controller() *AgentController { return a.controller }

// Registry holds every registered agent and auxiliary provider, keyed by
// process-local integer handles. Registration mirrors to the peer; dispatch
// lookups tolerate stale handles because disposal races the peer's calls.
type Registry struct {
	mu sync.RWMutex

	agents             map[int]*Agent
	detectors          map[int]DetectionProvider
	relatedFiles       map[int]RelatedFilesProvider
	sessionItems       map[int]SessionItemProvider
	sessionContent     map[int]SessionContentProvider
	completionsByAgent map[int]int // completions handle -> agent handle

	handles *HandleAllocator
	peer    Peer
	bus     *event.Bus
}

// NewRegistry creates an empty registry wired to the given peer and bus.
func NewRegistry(handles *HandleAllocator, peer Peer, bus *event.Bus) *Registry {
	return &Registry{
		agents:             make(map[int]*Agent),
		detectors:          make(map[int]DetectionProvider),
		relatedFiles:       make(map[int]RelatedFilesProvider),
		sessionItems:       make(map[int]SessionItemProvider),
		sessionContent:     make(map[int]SessionContentProvider),
		completionsByAgent: make(map[int]int),
		handles:            handles,
		peer:               peer,
		bus:                bus,
	}
}

// RegisterAgent stores a new agent under the next handle and notifies the
// peer. Metadata starts empty; mutable properties flow through the returned
// agent's controller as coalesced updates.
func (r *Registry) RegisterAgent(ext extension.Identity, agentID string, handler Handler) *Agent {
	handle := r.handles.Next(KindAgent)
	agent := &Agent{
		Handle:    handle,
		ID:        agentID,
		Extension: ext,
		Handler:   handler,
	}
	agent.controller = newAgentController(handle, r.peer)

	r.mu.Lock()
	r.agents[handle] = agent
	r.mu.Unlock()

	r.peer.RegisterAgent(handle, ext, agentID)
	r.bus.Publish(event.Event{
		Type: event.AgentRegistered,
		Data: event.AgentRegisteredData{Handle: handle, ExtensionID: ext.ID, AgentID: agentID},
	})
	logging.Debug().Int("handle", handle).Str("agentId", agentID).Str("extension", ext.ID).Msg("agent registered")
	return agent
}

// UnregisterAgent removes an agent and notifies the peer. Unknown handles
// are ignored.
func (r *Registry) UnregisterAgent(handle int) {
	r.mu.Lock()
	agent, ok := r.agents[handle]
	if ok {
		delete(r.agents, handle)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.peer.UnregisterAgent(handle)
	r.bus.Publish(event.Event{
		Type: event.AgentUnregistered,
		Data: event.AgentUnregisteredData{Handle: handle},
	})
	logging.Debug().Int("handle", handle).Str("agentId", agent.ID).Msg("agent unregistered")
}

// Agent looks up a registered agent by handle.
func (r *Registry) Agent(handle int) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[handle]
	return agent, ok
}

// RegisterDetectionProvider stores a participant detector.
func (r *Registry) RegisterDetectionProvider(p DetectionProvider) int {
	handle := r.handles.Next(KindDetector)
	r.mu.Lock()
	r.detectors[handle] = p
	r.mu.Unlock()
	return handle
}

// UnregisterDetectionProvider removes a participant detector.
func (r *Registry) UnregisterDetectionProvider(handle int) {
	r.mu.Lock()
	delete(r.detectors, handle)
	r.mu.Unlock()
}

// RegisterRelatedFilesProvider stores a related-files provider.
func (r *Registry) RegisterRelatedFilesProvider(p RelatedFilesProvider) int {
	handle := r.handles.Next(KindRelatedFiles)
	r.mu.Lock()
	r.relatedFiles[handle] = p
	r.mu.Unlock()
	return handle
}

// UnregisterRelatedFilesProvider removes a related-files provider.
func (r *Registry) UnregisterRelatedFilesProvider(handle int) {
	r.mu.Lock()
	delete(r.relatedFiles, handle)
	r.mu.Unlock()
}

// RegisterSessionItemProvider stores a session-item provider.
func (r *Registry) RegisterSessionItemProvider(p SessionItemProvider) int {
	handle := r.handles.Next(KindSessionItems)
	r.mu.Lock()
	r.sessionItems[handle] = p
	r.mu.Unlock()
	return handle
}

// UnregisterSessionItemProvider removes a session-item provider.
func (r *Registry) UnregisterSessionItemProvider(handle int) {
	r.mu.Lock()
	delete(r.sessionItems, handle)
	r.mu.Unlock()
}

// RegisterSessionContentProvider stores a session-content provider.
func (r *Registry) RegisterSessionContentProvider(p SessionContentProvider) int {
	handle := r.handles.Next(KindSessionContent)
	r.mu.Lock()
	r.sessionContent[handle] = p
	r.mu.Unlock()
	return handle
}

// UnregisterSessionContentProvider removes a session-content provider.
func (r *Registry) UnregisterSessionContentProvider(handle int) {
	r.mu.Lock()
	delete(r.sessionContent, handle)
	r.mu.Unlock()
}

// RegisterAgentCompletions attaches a completion provider to an agent and
// mirrors the registration to the peer.
func (r *Registry) RegisterAgentCompletions(agentHandle int, p CompletionProvider) int {
	handle := r.handles.Next(KindCompletions)

	r.mu.Lock()
	agent, ok := r.agents[agentHandle]
	if ok {
		agent.Completions = p
		r.completionsByAgent[handle] = agentHandle
	}
	r.mu.Unlock()
	if !ok {
		return handle
	}

	r.peer.RegisterCompletionsProvider(handle, agent.ID)
	r.bus.Publish(event.Event{
		Type: event.CompletionsRegistered,
		Data: event.CompletionsRegisteredData{Handle: handle, AgentID: agent.ID},
	})
	return handle
}

// UnregisterAgentCompletions detaches a completion provider.
func (r *Registry) UnregisterAgentCompletions(handle int) {
	r.mu.Lock()
	agentHandle, ok := r.completionsByAgent[handle]
	if ok {
		delete(r.completionsByAgent, handle)
		if agent, live := r.agents[agentHandle]; live {
			agent.Completions = nil
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.peer.UnregisterCompletionsProvider(handle)
	r.bus.Publish(event.Event{
		Type: event.CompletionsUnregistered,
		Data: event.CompletionsUnregisteredData{Handle: handle},
	})
}

// ProvideFollowups dispatches to an agent's followup provider. A stale
// handle or a missing provider yields an empty list.
func (r *Registry) ProvideFollowups(ctx context.Context, handle int, result wire.InvocationResult, history []Turn) ([]wire.Followup, error) {
	agent, ok := r.Agent(handle)
	if !ok || agent.Followups == nil {
		return nil, nil
	}
	return agent.Followups(ctx, result, history)
}

// AcceptFeedback forwards a user vote. Stale handles are ignored.
func (r *Registry) AcceptFeedback(ctx context.Context, handle int, requestID, vote string) {
	agent, ok := r.Agent(handle)
	if !ok || agent.Feedback == nil {
		return
	}
	agent.Feedback(ctx, requestID, vote)
}

// AcceptAction forwards a user action. Stale handles are ignored.
func (r *Registry) AcceptAction(ctx context.Context, handle int, requestID, action string) {
	agent, ok := r.Agent(handle)
	if !ok || agent.Action == nil {
		return
	}
	agent.Action(ctx, requestID, action)
}

// InvokeCompletionProvider dispatches a completion query through the
// completions handle. Stale handles yield an empty list.
func (r *Registry) InvokeCompletionProvider(ctx context.Context, handle int, query string) ([]wire.CompletionItem, error) {
	r.mu.RLock()
	agentHandle, ok := r.completionsByAgent[handle]
	var provider CompletionProvider
	if ok {
		if agent, live := r.agents[agentHandle]; live {
			provider = agent.Completions
		}
	}
	r.mu.RUnlock()

	if provider == nil {
		return nil, nil
	}
	return provider(ctx, query)
}

// ProvideChatTitle dispatches to an agent's title provider. A stale handle
// yields an empty title.
func (r *Registry) ProvideChatTitle(ctx context.Context, handle int, history []Turn) (string, error) {
	agent, ok := r.Agent(handle)
	if !ok || agent.Title == nil {
		return "", nil
	}
	return agent.Title(ctx, history)
}

// ProvideChatSummary dispatches to an agent's summarizer. A stale handle
// yields an empty summary.
func (r *Registry) ProvideChatSummary(ctx context.Context, handle int, history []Turn) (string, error) {
	agent, ok := r.Agent(handle)
	if !ok || agent.Summary == nil {
		return "", nil
	}
	return agent.Summary(ctx, history)
}

// DetectParticipant dispatches a detection query. A stale handle yields nil.
func (r *Registry) DetectParticipant(ctx context.Context, handle int, draft wire.RequestDraft) (*wire.DetectedParticipant, error) {
	r.mu.RLock()
	p := r.detectors[handle]
	r.mu.RUnlock()
	if p == nil {
		return nil, nil
	}
	return p(ctx, draft)
}

// ProvideRelatedFiles dispatches a related-files query. A stale handle
// yields an empty list.
func (r *Registry) ProvideRelatedFiles(ctx context.Context, handle int, draft wire.RequestDraft) ([]wire.RelatedFile, error) {
	r.mu.RLock()
	p := r.relatedFiles[handle]
	r.mu.RUnlock()
	if p == nil {
		return nil, nil
	}
	return p(ctx, draft)
}

// ProvideSessionItems dispatches to a session-item provider. A stale handle
// yields an empty list.
func (r *Registry) ProvideSessionItems(ctx context.Context, handle int) ([]SessionItem, error) {
	r.mu.RLock()
	p := r.sessionItems[handle]
	r.mu.RUnlock()
	if p == nil {
		return nil, nil
	}
	return p(ctx)
}

// ProvideSessionContent dispatches to a session-content provider. A stale
// handle yields an empty list.
func (r *Registry) ProvideSessionContent(ctx context.Context, handle int, sessionID string) ([]wire.HistoryTurn, error) {
	r.mu.RLock()
	p := r.sessionContent[handle]
	r.mu.RUnlock()
	if p == nil {
		return nil, nil
	}
	return p(ctx, sessionID)
}

// TransferActiveChatSession asks the peer to move a session to another
// workspace and records the handoff on the bus.
func (r *Registry) TransferActiveChatSession(sessionID, workspaceURI string) {
	r.peer.TransferActiveChatSession(sessionID, workspaceURI)
	r.bus.Publish(event.Event{
		Type: event.SessionTransferred,
		Data: event.SessionTransferredData{SessionID: sessionID, WorkspaceURI: workspaceURI},
	})
}
