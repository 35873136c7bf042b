package server

import "github.com/go-chi/chi/v5"

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.health)
	s.router.Get("/event", s.events)

	s.router.Route("/agent/{handle}", func(r chi.Router) {
		r.Post("/invoke", s.invokeAgent)
		r.Post("/followups", s.provideFollowups)
		r.Post("/feedback", s.acceptFeedback)
		r.Post("/action", s.acceptAction)
		r.Post("/title", s.provideChatTitle)
		r.Post("/summary", s.provideChatSummary)
	})

	s.router.Post("/completions/{handle}", s.invokeCompletionProvider)
	s.router.Post("/detect/{handle}", s.detectParticipant)
	s.router.Post("/relatedFiles/{handle}", s.provideRelatedFiles)

	s.router.Get("/sessionItems/{handle}", s.provideSessionItems)
	s.router.Get("/sessionContent/{handle}/{sessionID}", s.provideSessionContent)

	s.router.Post("/request/{requestID}/paused", s.setRequestPaused)
	s.router.Post("/request/{requestID}/tools", s.setRequestTools)

	s.router.Delete("/session/{sessionID}", s.releaseSession)

	s.router.Get("/transcript", s.listTranscripts)
	s.router.Get("/transcript/{sessionID}", s.sessionTranscript)
	s.router.Delete("/transcript/{sessionID}", s.purgeTranscript)
}
