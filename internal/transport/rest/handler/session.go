package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"readingsurvey/internal/logger"
	"readingsurvey/internal/model"
	"readingsurvey/internal/service"
	"readingsurvey/internal/transport/rest/middleware"
)

// SessionHandler exposes one tab's session machine
type SessionHandler struct {
	sessions *service.SessionManager
	log      *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionManager, log *logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// SkipRequest is the body of a skip report
type SkipRequest struct {
	Reason string `json:"reason"`
}

// OpenTab handles POST /v1/tabs
func (h *SessionHandler) OpenTab(w http.ResponseWriter, r *http.Request) {
	tabID, token, sm, err := h.sessions.Open(context.WithoutCancel(r.Context()))
	if err != nil {
		h.log.Error("open tab failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	writeJSON(w, http.StatusCreated, model.OpenTabResponse{
		Token: token,
		TabID: tabID,
		View:  sm.View(r.Context()),
	})
}

// View handles GET /v1/session
func (h *SessionHandler) View(w http.ResponseWriter, r *http.Request) {
	sm, ok := h.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sm.View(r.Context()))
}

// Consent handles POST /v1/session/consent
func (h *SessionHandler) Consent(w http.ResponseWriter, r *http.Request) {
	var req model.ConsentInput
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.SubmitConsent(ctx, req)
	})
}

// Prefetch handles POST /v1/session/prefetch
func (h *SessionHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.Prefetch(ctx)
	})
}

// Background handles POST /v1/session/background
func (h *SessionHandler) Background(w http.ResponseWriter, r *http.Request) {
	var req model.BackgroundInput
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.SubmitBackground(ctx, req)
	})
}

// Back handles POST /v1/session/back
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.BackToText(ctx)
	})
}

// Answers handles POST /v1/session/answers (draft only)
func (h *SessionHandler) Answers(w http.ResponseWriter, r *http.Request) {
	var req model.TextAnswers
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.UpdateAnswers(ctx, req)
	})
}

// Questionnaire handles POST /v1/session/questionnaire
func (h *SessionHandler) Questionnaire(w http.ResponseWriter, r *http.Request) {
	var req model.TextAnswers
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.SubmitQuestionnaire(ctx, req)
	})
}

// Skip handles POST /v1/session/skip
func (h *SessionHandler) Skip(w http.ResponseWriter, r *http.Request) {
	var req SkipRequest
	if !decode(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.RequestSkip(ctx, req.Reason)
	})
}

// Retry handles POST /v1/session/retry
func (h *SessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.RetryAssignment(ctx)
	})
}

// Restart handles POST /v1/session/restart
func (h *SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, sm *service.SessionMachine) error {
		return sm.Restart(ctx)
	})
}

// Close handles DELETE /v1/session. The live machine is released; stored
// progress stays so the same token can resume later.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(middleware.GetTabID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) machine(w http.ResponseWriter, r *http.Request) (*service.SessionMachine, bool) {
	tabID := middleware.GetTabID(r.Context())
	sm, err := h.sessions.Get(context.WithoutCancel(r.Context()), tabID)
	if err != nil {
		h.log.Error("session lookup failed", "tab_id", tabID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return sm, true
}

// run executes a transition detached from the request so that a client
// disconnect cannot abort a submission halfway
func (h *SessionHandler) run(w http.ResponseWriter, r *http.Request, transition func(ctx context.Context, sm *service.SessionMachine) error) {
	sm, ok := h.machine(w, r)
	if !ok {
		return
	}
	if err := transition(context.WithoutCancel(r.Context()), sm); err != nil {
		view := sm.Snapshot()
		writeSessionError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, sm.View(r.Context()))
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
