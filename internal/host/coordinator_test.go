package host

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/internal/model"
	"github.com/opencode-ai/chathost/internal/part"
	"github.com/opencode-ai/chathost/internal/session"
	"github.com/opencode-ai/chathost/internal/stream"
	"github.com/opencode-ai/chathost/internal/transcript"
	"github.com/opencode-ai/chathost/pkg/wire"
)

type coordinatorFixture struct {
	registry    *Registry
	coordinator *Coordinator
	peer        *recordingPeer
	bus         *event.Bus
	sessions    *session.Registry
}

type staticTools []Tool

func (s staticTools) Tools(ext extension.Identity) []Tool { return s }

func newCoordinatorFixture(t *testing.T, opts CoordinatorOptions) *coordinatorFixture {
	t.Helper()

	peer := newRecordingPeer()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	models := model.NewRegistry()
	models.Register(model.Model{ID: "gpt-test", Name: "Test Model"})
	require.NoError(t, models.SetDefault("gpt-test"))

	sessions := session.NewRegistry(bus)
	registry := NewRegistry(NewHandleAllocator(), peer, bus)

	opts.Registry = registry
	opts.Models = models
	opts.Sessions = sessions
	opts.Peer = peer
	opts.Bus = bus
	if opts.FlushDelay == 0 {
		opts.FlushDelay = time.Millisecond
	}
	if opts.GracePeriod == 0 {
		opts.GracePeriod = 50 * time.Millisecond
	}

	return &coordinatorFixture{
		registry:    registry,
		coordinator: NewCoordinator(opts),
		peer:        peer,
		bus:         bus,
		sessions:    sessions,
	}
}

func draft(requestID string) wire.RequestDraft {
	return wire.RequestDraft{
		RequestID: requestID,
		SessionID: "s1",
		AgentID:   "cat",
		Message:   "hello",
	}
}

func TestCoordinator_UnknownAgentIsFatal(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})

	_, err := f.coordinator.Invoke(context.Background(), 7, draft("r1"), nil)

	var unknown *UnknownAgentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 7, unknown.Handle)
}

func TestCoordinator_EndToEnd(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			require.NoError(t, out.Append(part.Markdown{Content: "hi"}))
			return &wire.InvocationResult{}, nil
		})

	result, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r1"), nil)
	require.NoError(t, err)

	assert.Nil(t, result.ErrorDetails)
	require.NotNil(t, result.Timings)

	require.Eventually(t, func() bool {
		return len(f.peer.chunksFor("r1")) == 1
	}, time.Second, time.Millisecond)

	chunks := f.peer.chunksFor("r1")
	require.Len(t, chunks[0], 1)
	assert.Equal(t, wire.TypeMarkdown, chunks[0][0].Part.DTOType())

	assert.False(t, f.coordinator.InFlight("r1"))
	assert.Equal(t, []string{"r1"}, f.peer.completes)
}

func TestCoordinator_HandlerSeesInFlightEntry(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			assert.True(t, f.coordinator.InFlight(req.RequestID))
			require.NotNil(t, ictx.InFlight)
			return nil, nil
		})

	_, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r2"), nil)
	require.NoError(t, err)
	assert.False(t, f.coordinator.InFlight("r2"))
}

func TestCoordinator_HandlerErrorNormalized(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			return nil, assert.AnError
		})

	result, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r3"), nil)
	require.NoError(t, err)

	require.NotNil(t, result.ErrorDetails)
	assert.True(t, result.ErrorDetails.ResponseIsIncomplete)
	assert.Contains(t, result.ErrorDetails.Message, assert.AnError.Error())
	assert.False(t, f.coordinator.InFlight("r3"))
	assert.Equal(t, []string{"r3"}, f.peer.completes)
}

func TestCoordinator_ModelUnavailableIsNormalized(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat", nopHandler)

	d := draft("r4")
	d.UserSelectedModelID = "missing-model"
	result, err := f.coordinator.Invoke(context.Background(), agent.Handle, d, nil)
	require.NoError(t, err)

	require.NotNil(t, result.ErrorDetails)
	assert.Contains(t, result.ErrorDetails.Message, "missing-model")
	assert.True(t, result.ErrorDetails.ResponseIsIncomplete)
}

func TestCoordinator_ModelSelection(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			assert.Equal(t, "gpt-test", req.Model.ID)
			return nil, nil
		})

	_, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r5"), nil)
	require.NoError(t, err)
}

func TestCoordinator_MetadataSerializationGuard(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			return &wire.InvocationResult{Metadata: json.RawMessage(`{"broken":`)}, nil
		})

	result, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r6"), nil)
	require.NoError(t, err)

	require.NotNil(t, result.ErrorDetails)
	assert.Contains(t, result.ErrorDetails.Message, "serialize")
	// The incomplete flag stays unset on this branch.
	assert.False(t, result.ErrorDetails.ResponseIsIncomplete)
	assert.Nil(t, result.Metadata)
}

func TestCoordinator_PrivilegedFieldsRequireCapability(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			return &wire.InvocationResult{
				ErrorDetails: &wire.ErrorDetails{Message: "quota", IsQuotaExceeded: true},
			}, nil
		})

	result, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r7"), nil)
	require.NoError(t, err)

	require.NotNil(t, result.ErrorDetails)
	assert.False(t, result.ErrorDetails.IsQuotaExceeded)
	assert.Contains(t, result.ErrorDetails.Message, "privateChat")
}

func TestCoordinator_PrivilegedFieldsPassWithCapability(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	ext := extension.Identity{ID: "vendor.tester", Capabilities: []extension.Capability{extension.CapPrivateChat}}
	agent := f.registry.RegisterAgent(ext, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			return &wire.InvocationResult{
				ErrorDetails: &wire.ErrorDetails{Message: "quota", IsQuotaExceeded: true},
			}, nil
		})

	result, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r8"), nil)
	require.NoError(t, err)

	require.NotNil(t, result.ErrorDetails)
	assert.True(t, result.ErrorDetails.IsQuotaExceeded)
	assert.True(t, result.ErrorDetails.ResponseIsIncomplete)
}

func TestCoordinator_QuotaErrorClassification(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	ext := extension.Identity{ID: "vendor.tester", Capabilities: []extension.Capability{extension.CapPrivateChat}}
	agent := f.registry.RegisterAgent(ext, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			return nil, &model.Error{Code: "quota", Cause: &model.QuotaExceededError{ModelID: "gpt-test"}}
		})

	result, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r9"), nil)
	require.NoError(t, err)

	require.NotNil(t, result.ErrorDetails)
	assert.True(t, result.ErrorDetails.IsQuotaExceeded)
	assert.True(t, result.ErrorDetails.ResponseIsIncomplete)
	assert.Contains(t, result.ErrorDetails.Message, "quota exceeded")
}

func TestCoordinator_CancellationResolvesEmpty(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{GracePeriod: 10 * time.Millisecond})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			<-make(chan struct{}) // never returns
			return nil, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.coordinator.Invoke(ctx, agent.Handle, draft("r10"), nil)
	require.NoError(t, err)

	assert.Nil(t, result.ErrorDetails)
	assert.NotNil(t, result.Timings)
	assert.False(t, f.coordinator.InFlight("r10"))
	assert.Equal(t, []string{"r10"}, f.peer.completes)
}

func TestCoordinator_CancellationGraceLetsHandlerFinish(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{GracePeriod: 100 * time.Millisecond})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			time.Sleep(20 * time.Millisecond)
			return &wire.InvocationResult{Details: "made it"}, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.coordinator.Invoke(ctx, agent.Handle, draft("r11"), nil)
	require.NoError(t, err)

	assert.Equal(t, "made it", result.Details)
	assert.Nil(t, result.ErrorDetails)
}

func TestCoordinator_PauseAndToolSignals(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})

	signalled := make(chan struct{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			close(signalled)
			// Wait for the pause signal to land on the live entry.
			deadline := time.After(time.Second)
			for !ictx.InFlight.Paused() {
				select {
				case <-deadline:
					t.Error("pause signal never observed")
					return nil, nil
				case <-time.After(time.Millisecond):
				}
			}
			assert.True(t, ictx.InFlight.Tools()["search"])
			return nil, nil
		})

	go func() {
		<-signalled
		f.coordinator.SetRequestTools("r12", map[string]bool{"search": true})
		f.coordinator.SetRequestPaused("r12", true)
	}()

	_, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r12"), nil)
	require.NoError(t, err)
}

func TestCoordinator_SignalsForFinishedRequestsAreTolerated(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})

	f.coordinator.SetRequestPaused("gone", true)
	f.coordinator.SetRequestTools("gone", map[string]bool{"x": true})
}

func TestCoordinator_ToolFiltering(t *testing.T) {
	tools := staticTools{
		{Name: "search"},
		{Name: "edit_file"},
		{Name: "edit_notebook"},
	}
	f := newCoordinatorFixture(t, CoordinatorOptions{ToolSource: tools})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			require.Len(t, req.Tools, 2)
			assert.Equal(t, "edit_file", req.Tools[0].Name)
			assert.Equal(t, "edit_notebook", req.Tools[1].Name)
			return nil, nil
		})

	d := draft("r13")
	d.UserSelectedTools = map[string]bool{"edit_*": true}
	_, err := f.coordinator.Invoke(context.Background(), agent.Handle, d, nil)
	require.NoError(t, err)
}

func TestCoordinator_HistoryRevival(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			require.Len(t, ictx.History, 1)
			require.Len(t, ictx.History[0].Response, 1)
			return nil, nil
		})

	history := []wire.HistoryTurn{{
		Request:  draft("old"),
		Response: []json.RawMessage{[]byte(`{"type":"markdownContent","value":"earlier answer"}`)},
	}}
	_, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r14"), history)
	require.NoError(t, err)
}

func TestCoordinator_VariableSplitting(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorOptions{})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			require.Len(t, req.Variables, 1)
			assert.Equal(t, "selection", req.Variables[0].Name)
			require.Len(t, req.ToolReferences, 1)
			assert.Equal(t, "search", req.ToolReferences[0].Name)
			return nil, nil
		})

	d := draft("r15")
	d.Variables = []wire.VariableEntry{
		{Name: "selection", References: []wire.ReferenceDTO{{URI: "file:///a.go"}}},
		{Name: "search", IsTool: true},
	}
	_, err := f.coordinator.Invoke(context.Background(), agent.Handle, d, nil)
	require.NoError(t, err)
}

func TestCoordinator_EditedFileEventsAreCapabilityGated(t *testing.T) {
	events := []wire.EditedFileEvent{{URI: "file:///a.go", Kind: "userEdit"}}

	t.Run("without capability", func(t *testing.T) {
		f := newCoordinatorFixture(t, CoordinatorOptions{})
		agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
			func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
				assert.Empty(t, req.EditedFileEvents)
				return nil, nil
			})
		d := draft("r16")
		d.EditedFileEvents = events
		_, err := f.coordinator.Invoke(context.Background(), agent.Handle, d, nil)
		require.NoError(t, err)
	})

	t.Run("with capability", func(t *testing.T) {
		f := newCoordinatorFixture(t, CoordinatorOptions{})
		ext := extension.Identity{ID: "vendor.tester", Capabilities: []extension.Capability{extension.CapEditedFileEvents}}
		agent := f.registry.RegisterAgent(ext, "cat",
			func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
				assert.Len(t, req.EditedFileEvents, 1)
				return nil, nil
			})
		d := draft("r17")
		d.EditedFileEvents = events
		_, err := f.coordinator.Invoke(context.Background(), agent.Handle, d, nil)
		require.NoError(t, err)
	})
}

func TestCoordinator_ArchivesCompletedInvocation(t *testing.T) {
	archive := transcript.NewArchive(t.TempDir())
	f := newCoordinatorFixture(t, CoordinatorOptions{Archive: archive})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			require.NoError(t, out.Append(part.Markdown{Content: "hi"}))
			return &wire.InvocationResult{}, nil
		})

	_, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r18"), nil)
	require.NoError(t, err)

	turns, err := archive.Turns(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "r18", turns[0].RequestID)
	assert.Equal(t, "cat", turns[0].AgentID)
	assert.Equal(t, "hello", turns[0].Message)
	assert.False(t, turns[0].CompletedAt.Before(turns[0].StartedAt))

	require.Len(t, turns[0].Response, 1)
	md, ok := turns[0].Response[0].(*wire.MarkdownDTO)
	require.True(t, ok)
	assert.Equal(t, "hi", md.Value)
}

type staticDiagnostics []Diagnostic

func (s staticDiagnostics) Diagnostics() []Diagnostic { return s }

func TestCoordinator_HandlerSeesWorkspaceDiagnostics(t *testing.T) {
	diags := staticDiagnostics{
		{URI: "file:///main.go", Message: "unused variable", Severity: "warning"},
	}
	f := newCoordinatorFixture(t, CoordinatorOptions{Diagnostics: diags})
	agent := f.registry.RegisterAgent(extension.Identity{ID: "vendor.tester"}, "cat",
		func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
			require.Len(t, ictx.Diagnostics, 1)
			assert.Equal(t, "unused variable", ictx.Diagnostics[0].Message)
			return nil, nil
		})

	_, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r19"), nil)
	require.NoError(t, err)
}

func TestCoordinator_ConfirmationButtonsRequireConfirmationCapability(t *testing.T) {
	buttons := []string{"Allow", "Deny"}
	handler := func(ctx context.Context, req *Request, ictx *InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
		return &wire.InvocationResult{
			ErrorDetails: &wire.ErrorDetails{Message: "needs approval", ConfirmationButtons: buttons},
		}, nil
	}

	t.Run("without capability", func(t *testing.T) {
		f := newCoordinatorFixture(t, CoordinatorOptions{})
		// privateChat alone is not enough for confirmation buttons.
		ext := extension.Identity{ID: "vendor.tester", Capabilities: []extension.Capability{extension.CapPrivateChat}}
		agent := f.registry.RegisterAgent(ext, "cat", handler)

		result, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r20"), nil)
		require.NoError(t, err)

		require.NotNil(t, result.ErrorDetails)
		assert.Empty(t, result.ErrorDetails.ConfirmationButtons)
		assert.Contains(t, result.ErrorDetails.Message, "confirmation")
	})

	t.Run("with capability", func(t *testing.T) {
		f := newCoordinatorFixture(t, CoordinatorOptions{})
		ext := extension.Identity{ID: "vendor.tester", Capabilities: []extension.Capability{extension.CapConfirmation}}
		agent := f.registry.RegisterAgent(ext, "cat", handler)

		result, err := f.coordinator.Invoke(context.Background(), agent.Handle, draft("r21"), nil)
		require.NoError(t, err)

		require.NotNil(t, result.ErrorDetails)
		assert.Equal(t, buttons, result.ErrorDetails.ConfirmationButtons)
		assert.True(t, result.ErrorDetails.ResponseIsIncomplete)
	})
}
