package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/chathost/internal/host"
	"github.com/opencode-ai/chathost/internal/transcript"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// invokeRequest is the body of an invoke call.
type invokeRequest struct {
	Draft   wire.RequestDraft  `json:"draft"`
	History []wire.HistoryTurn `json:"history,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"inFlight": s.coordinator.InFlightCount(),
	})
}

// invokeAgent runs one invocation. Client disconnect cancels the request;
// the coordinator turns cancellation into an empty result, so the only error
// status here is an unknown handle.
func (s *Server) invokeAgent(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var body invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	result, err := s.coordinator.Invoke(r.Context(), handle, body.Draft, body.History)
	if err != nil {
		var unknown *host.UnknownAgentError
		if errors.As(err, &unknown) {
			writeError(w, http.StatusNotFound, ErrCodeUnknownAgent, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) provideFollowups(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var body struct {
		Result  wire.InvocationResult `json:"result"`
		History []wire.HistoryTurn    `json:"history,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	followups, err := s.registry.ProvideFollowups(r.Context(), handle, body.Result, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if followups == nil {
		followups = []wire.Followup{}
	}
	writeJSON(w, http.StatusOK, followups)
}

func (s *Server) acceptFeedback(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var body struct {
		RequestID string `json:"requestId"`
		Vote      string `json:"vote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	s.registry.AcceptFeedback(r.Context(), handle, body.RequestID, body.Vote)
	writeSuccess(w)
}

func (s *Server) acceptAction(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var body struct {
		RequestID string `json:"requestId"`
		Action    string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	s.registry.AcceptAction(r.Context(), handle, body.RequestID, body.Action)
	writeSuccess(w)
}

func (s *Server) provideChatTitle(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	title, err := s.registry.ProvideChatTitle(r.Context(), handle, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

func (s *Server) provideChatSummary(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	summary, err := s.registry.ProvideChatSummary(r.Context(), handle, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) invokeCompletionProvider(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	items, err := s.registry.InvokeCompletionProvider(r.Context(), handle, body.Query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if items == nil {
		items = []wire.CompletionItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) detectParticipant(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var draft wire.RequestDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	detected, err := s.registry.DetectParticipant(r.Context(), handle, draft)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detected)
}

func (s *Server) provideRelatedFiles(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var draft wire.RequestDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	files, err := s.registry.ProvideRelatedFiles(r.Context(), handle, draft)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if files == nil {
		files = []wire.RelatedFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) provideSessionItems(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	items, err := s.registry.ProvideSessionItems(r.Context(), handle)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if items == nil {
		items = []host.SessionItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) provideSessionContent(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := s.registry.ProvideSessionContent(r.Context(), handle, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if turns == nil {
		turns = []wire.HistoryTurn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) setRequestPaused(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var body struct {
		IsPaused bool `json:"isPaused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	s.coordinator.SetRequestPaused(requestID, body.IsPaused)
	writeSuccess(w)
}

func (s *Server) setRequestTools(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var body struct {
		Tools map[string]bool `json:"tools"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	s.coordinator.SetRequestTools(requestID, body.Tools)
	writeSuccess(w)
}

// releaseSession disposes a session's resources. Releasing an unknown or
// already-released session succeeds.
func (s *Server) releaseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.sessions.Release(sessionID)
	writeSuccess(w)
}

func (s *Server) listTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}

	sessions, err := s.archive.Sessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) sessionTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []transcript.Record{})
		return
	}

	turns, err := s.archive.Turns(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// purgeTranscript drops a session's archived turns. Like session release,
// purging a session that was never archived succeeds.
func (s *Server) purgeTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if s.archive != nil {
		if err := s.archive.Purge(r.Context(), sessionID); err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
	}
	writeSuccess(w)
}

// handleParam parses the integer handle path parameter.
func handleParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	handle, err := strconv.Atoi(chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid handle")
		return 0, false
	}
	return handle, true
}
