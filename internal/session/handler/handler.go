package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docguard/internal/issuer"
	"docguard/internal/platform/middleware"
	"docguard/internal/session/models"
	"docguard/internal/session/service"
	"docguard/internal/threat"
	"docguard/internal/watermark"
	id "docguard/pkg/domain"
	dErrors "docguard/pkg/domain-errors"
	"docguard/pkg/platform/httputil"
)

// Service is the session engine as used by the local agent API.
type Service interface {
	Open(ctx context.Context, req service.OpenRequest) (service.SessionInfo, error)
	Get(sessionID id.SessionID) (service.SessionInfo, error)
	Decision(sessionID id.SessionID) (models.DecisionSnapshot, error)
	Watermark(sessionID id.SessionID) (watermark.Plan, error)
	Events(sessionID id.SessionID) ([]models.SecurityEvent, error)
	Signal(ctx context.Context, sessionID id.SessionID, sig threat.Signal) (models.DecisionSnapshot, error)
	AdvancePage(ctx context.Context, sessionID id.SessionID, page int) (models.DecisionSnapshot, error)
	Revoke(ctx context.Context, sessionID id.SessionID, detail string) (models.DecisionSnapshot, error)
	Close(ctx context.Context, sessionID id.SessionID) (models.DecisionSnapshot, error)
	Search(ctx context.Context, req issuer.SearchRequest) ([]issuer.SearchHit, error)
}

// Handler serves the session endpoints to the host shell on loopback.
type Handler struct {
	logger      *slog.Logger
	sessions    Service
	openTimeout time.Duration
}

func New(sessions Service, logger *slog.Logger, openTimeout time.Duration) *Handler {
	if openTimeout <= 0 {
		openTimeout = 2 * time.Minute
	}
	return &Handler{
		logger:      logger,
		sessions:    sessions,
		openTimeout: openTimeout,
	}
}

// Register registers the session routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	sessionRouter := chi.NewRouter()
	sessionRouter.Use(middleware.Recovery(h.logger))
	sessionRouter.Use(middleware.RequestID)
	sessionRouter.Use(middleware.RequestTime)
	sessionRouter.Use(middleware.Logger(h.logger))
	sessionRouter.Use(middleware.ContentTypeJSON)

	// Opening downloads and hashes the artifact, so it gets its own budget.
	sessionRouter.With(middleware.Timeout(h.openTimeout)).Post("/sessions", h.handleOpen)
	sessionRouter.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Get("/sessions/{sessionID}", h.handleGet)
		r.Delete("/sessions/{sessionID}", h.handleClose)
		r.Get("/sessions/{sessionID}/decision", h.handleDecision)
		r.Post("/sessions/{sessionID}/signals", h.handleSignal)
		r.Post("/sessions/{sessionID}/page", h.handlePage)
		r.Get("/sessions/{sessionID}/watermark", h.handleWatermark)
		r.Get("/sessions/{sessionID}/events", h.handleEvents)
		r.Post("/sessions/{sessionID}/revoke", h.handleRevoke)
		r.Get("/search", h.handleSearch)
	})

	r.Mount("/", sessionRouter)
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid open session request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	openReq, err := req.ToService()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	info, err := h.sessions.Open(ctx, openReq)
	if err != nil {
		h.writeServiceError(ctx, w, "open session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SessionResponse{
		SessionInfo: info,
		Overlay:     h.overlay(ctx, info.Decision),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	info, err := h.sessions.Get(sessionID)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{
		SessionInfo: info,
		Overlay:     h.overlay(r.Context(), info.Decision),
	})
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	d, err := h.sessions.Decision(sessionID)
	h.writeDecision(w, r, "decision", d, err)
}

func (h *Handler) handleSignal(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sig, err := req.ToSignal()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.sessions.Signal(r.Context(), sessionID, sig)
	h.writeDecision(w, r, "signal", d, err)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	d, err := h.sessions.AdvancePage(r.Context(), sessionID, req.Page)
	h.writeDecision(w, r, "advance page", d, err)
}

func (h *Handler) handleWatermark(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	plan, err := h.sessions.Watermark(sessionID)
	if err != nil {
		h.writeServiceError(r.Context(), w, "watermark", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, plan)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	events, err := h.sessions.Events(sessionID)
	if err != nil {
		h.writeServiceError(r.Context(), w, "events", err)
		return
	}
	if events == nil {
		events = []models.SecurityEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, EventsResponse{SessionID: sessionID, Events: events})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req RevokeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	d, err := h.sessions.Revoke(r.Context(), sessionID, req.Detail)
	h.writeDecision(w, r, "revoke", d, err)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	d, err := h.sessions.Close(r.Context(), sessionID)
	h.writeDecision(w, r, "close", d, err)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := searchRequestFrom(q.Get("documentId"), q.Get("query"), q.Get("from"), q.Get("to"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	hits, err := h.sessions.Search(r.Context(), req)
	if err != nil {
		h.writeServiceError(r.Context(), w, "search", err)
		return
	}
	if hits == nil {
		hits = []issuer.SearchHit{}
	}
	httputil.WriteJSON(w, http.StatusOK, SearchResponse{Hits: hits})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SessionID{}, false
	}
	return sessionID, true
}

func (h *Handler) writeDecision(w http.ResponseWriter, r *http.Request, op string, d models.DecisionSnapshot, err error) {
	if err != nil {
		h.writeServiceError(r.Context(), w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DecisionResponse{
		Decision: d,
		Overlay:  h.overlay(r.Context(), d),
	})
}

// overlay falls back to a fully blocking overlay for anything unmapped.
func (h *Handler) overlay(ctx context.Context, d models.DecisionSnapshot) models.Overlay {
	o, err := models.OverlayFor(d)
	if err != nil {
		h.logger.ErrorContext(ctx, "unmapped decision, blocking content",
			"request_id", middleware.GetRequestID(ctx),
			"state", d.State,
			"lock_reason", d.LockReason,
			"error", err,
		)
	}
	return o
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"op", op,
		"code", string(code),
		"error", err.Error(),
	}
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "session request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "session request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}
