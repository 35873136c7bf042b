package host

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chathost/internal/extension"
)

func TestAgentController_CoalescesSetterBurst(t *testing.T) {
	r, peer := newTestRegistry(t)
	agent := r.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat", nopHandler)

	c := agent.Controller()
	c.SetFullName("Cat")
	c.SetDescription("Feline assistance")
	c.SetIcon("cat-icon")
	c.SetHasFollowups(true)

	require.Eventually(t, func() bool {
		return len(peer.metadataUpdates()) >= 1
	}, time.Second, time.Millisecond)

	// Give any extra scheduled push time to land, then check the burst
	// produced exactly one update carrying every setter's value.
	time.Sleep(20 * time.Millisecond)
	updates := peer.metadataUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, "Cat", updates[0].FullName)
	assert.Equal(t, "Feline assistance", updates[0].Description)
	assert.Equal(t, "cat-icon", updates[0].Icon)
	assert.True(t, updates[0].HasFollowups)
}

func TestAgentController_SeparateBurstsPushSeparately(t *testing.T) {
	r, peer := newTestRegistry(t)
	agent := r.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat", nopHandler)
	c := agent.Controller()

	c.SetFullName("Cat")
	require.Eventually(t, func() bool {
		return len(peer.metadataUpdates()) == 1
	}, time.Second, time.Millisecond)

	c.SetWelcomeMessage("meow")
	require.Eventually(t, func() bool {
		updates := peer.metadataUpdates()
		return len(updates) >= 2 && updates[len(updates)-1].WelcomeMessage == "meow"
	}, time.Second, time.Millisecond)

	// Earlier fields survive later pushes.
	updates := peer.metadataUpdates()
	assert.Equal(t, "Cat", updates[len(updates)-1].FullName)
}

func TestAgentController_MetadataSnapshot(t *testing.T) {
	r, _ := newTestRegistry(t)
	agent := r.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat", nopHandler)
	c := agent.Controller()

	c.SetRequester("user@host")
	c.SetSupportsIssueReporting(true)

	meta := c.Metadata()
	assert.Equal(t, "user@host", meta.Requester)
	assert.True(t, meta.SupportsIssueReporting)
}
