package host

import (
	"sync"
	"time"

	"github.com/opencode-ai/chathost/pkg/wire"
)

// metadataFlushDelay is how long a scheduled metadata push waits before
// snapshotting, so a synchronous burst of setter calls lands in one update.
const metadataFlushDelay = 5 * time.Millisecond

// AgentController owns an agent's mutable public configuration. Setters mark
// the metadata dirty and defer one coalesced push to the peer; any number of
// setter calls in one synchronous burst produce exactly one update message.
type AgentController struct {
	handle int
	peer   Peer

	mu        sync.Mutex
	meta      wire.AgentMetadata
	scheduled bool
}

func newAgentController(handle int, peer Peer) *AgentController {
	return &AgentController{handle: handle, peer: peer}
}

// Metadata returns a snapshot of the current configuration.
func (c *AgentController) Metadata() wire.AgentMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// SetFullName sets the agent's display name.
func (c *AgentController) SetFullName(v string) {
	c.update(func(m *wire.AgentMetadata) { m.FullName = v })
}

// SetDescription sets the agent's description.
func (c *AgentController) SetDescription(v string) {
	c.update(func(m *wire.AgentMetadata) { m.Description = v })
}

// SetIcon sets the agent's icon reference.
func (c *AgentController) SetIcon(v string) {
	c.update(func(m *wire.AgentMetadata) { m.Icon = v })
}

// SetHelpText sets the agent's help text prefix.
func (c *AgentController) SetHelpText(v string) {
	c.update(func(m *wire.AgentMetadata) { m.HelpText = v })
}

// SetWelcomeMessage sets the agent's welcome message.
func (c *AgentController) SetWelcomeMessage(v string) {
	c.update(func(m *wire.AgentMetadata) { m.WelcomeMessage = v })
}

// SetRequester sets the display identity of the requesting user.
func (c *AgentController) SetRequester(v string) {
	c.update(func(m *wire.AgentMetadata) { m.Requester = v })
}

// SetSupportsIssueReporting toggles the issue-reporting affordance.
func (c *AgentController) SetSupportsIssueReporting(v bool) {
	c.update(func(m *wire.AgentMetadata) { m.SupportsIssueReporting = v })
}

// SetHasFollowups advertises whether a followup provider is attached.
func (c *AgentController) SetHasFollowups(v bool) {
	c.update(func(m *wire.AgentMetadata) { m.HasFollowups = v })
}

func (c *AgentController) update(mutate func(*wire.AgentMetadata)) {
	c.mu.Lock()
	mutate(&c.meta)
	if c.scheduled {
		c.mu.Unlock()
		return
	}
	c.scheduled = true
	c.mu.Unlock()

	go c.push()
}

// push delivers one coalesced metadata update. Setters landing within the
// delay join this snapshot; the scheduled flag is cleared before the snapshot
// is taken so setters landing during the peer call schedule a fresh push.
func (c *AgentController) push() {
	time.Sleep(metadataFlushDelay)

	c.mu.Lock()
	c.scheduled = false
	meta := c.meta
	c.mu.Unlock()

	c.peer.UpdateAgentMetadata(c.handle, meta)
}
