package host_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/internal/transcript"
	"github.com/opencode-ai/chathost/pkg/wire"
)

var _ = Describe("Agent invocation", func() {
	BeforeEach(func() {
		harness.Events.Reset()
	})

	Describe("POST /agent/{handle}/invoke", func() {
		It("streams progress and resolves a clean envelope", func() {
			agent := harness.RegisterEchoAgent(extension.Identity{ID: "vendor.echo"}, "echo")

			result, resp, err := harness.Invoke(ctx, agent.Handle, wire.RequestDraft{
				RequestID: "e2e-1",
				SessionID: "s-e2e",
				AgentID:   "echo",
				Message:   "hi",
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(result.ErrorDetails).To(BeNil())
			Expect(result.Timings).NotTo(BeNil())

			Eventually(func() int {
				return len(harness.Events.OfType(event.ProgressChunk))
			}).Should(Equal(1))

			chunk := harness.Events.OfType(event.ProgressChunk)[0].Data.(event.ProgressChunkData)
			Expect(chunk.RequestID).To(Equal("e2e-1"))
			Expect(chunk.Parts).To(HaveLen(1))
			Expect(chunk.Parts[0].Part.DTOType()).To(Equal(wire.TypeMarkdown))

			Expect(harness.Coordinator.InFlight("e2e-1")).To(BeFalse())
			Expect(harness.Events.OfType(event.ProgressComplete)).To(HaveLen(1))
		})

		It("rejects an unregistered handle", func() {
			result, resp, err := harness.Invoke(ctx, 9999, wire.RequestDraft{
				RequestID: "e2e-2",
				SessionID: "s-e2e",
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNil())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("request side channels", func() {
		It("tolerates pause signals for finished requests", func() {
			resp, err := harness.Post(ctx, "/request/finished-long-ago/paused", map[string]any{"isPaused": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("DELETE /session/{sessionID}", func() {
		It("releases session resources and is idempotent", func() {
			harness.Sessions.Store("s-release")

			resp, err := harness.Delete(ctx, "/session/s-release")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(harness.Sessions.Has("s-release")).To(BeFalse())

			resp, err = harness.Delete(ctx, "/session/s-release")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Eventually(func() int {
				return len(harness.Events.OfType(event.SessionReleased))
			}).Should(Equal(1))
		})
	})

	Describe("GET /transcript/{sessionID}", func() {
		It("serves archived turns and purges on delete", func() {
			agent := harness.RegisterEchoAgent(extension.Identity{ID: "vendor.echo"}, "echo")

			_, _, err := harness.Invoke(ctx, agent.Handle, wire.RequestDraft{
				RequestID: "e2e-t1",
				SessionID: "s-archive",
				AgentID:   "echo",
				Message:   "remember this",
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			var turns []transcript.Record
			resp, err := harness.Get(ctx, "/transcript/s-archive", &turns)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].RequestID).To(Equal("e2e-t1"))
			Expect(turns[0].Message).To(Equal("remember this"))
			Expect(turns[0].Response).NotTo(BeEmpty())

			resp, err = harness.Delete(ctx, "/transcript/s-archive")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			turns = nil
			_, err = harness.Get(ctx, "/transcript/s-archive", &turns)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("agent registration lifecycle", func() {
		It("announces registration and disposal on the event feed", func() {
			agent := harness.Registry.RegisterAgent(extension.Identity{ID: "vendor.temp"}, "temp", nil)

			Eventually(func() int {
				return len(harness.Events.OfType(event.AgentRegistered))
			}).Should(BeNumerically(">=", 1))

			harness.Registry.UnregisterAgent(agent.Handle)
			Eventually(func() int {
				return len(harness.Events.OfType(event.AgentUnregistered))
			}).Should(Equal(1))
		})
	})
})
