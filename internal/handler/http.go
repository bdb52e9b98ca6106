package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pointbot/internal/cooldown"
	"github.com/pointbot/internal/domain"
	"github.com/pointbot/internal/service"
	"github.com/pointbot/internal/websocket"
)

// Pinger reports whether the point store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// PointCounter reads a user's point total without touching the user row
type PointCounter interface {
	CountPoints(ctx context.Context, userID int64) (int64, error)
}

// UserReader reads user rows without modifying them
type UserReader interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// Store is the read side of the point store used by the API
type Store interface {
	Pinger
	PointCounter
	UserReader
}

// UserPoints is the body of the user points endpoint
type UserPoints struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Points      int64  `json:"points"`
}

// Handler serves liveness probes and read-only point queries
type Handler struct {
	reporter *service.Reporter
	store    Store
	tracker  *cooldown.Tracker
	hub      *websocket.Hub
	origins  []string
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	reporter *service.Reporter,
	store Store,
	tracker *cooldown.Tracker,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		reporter: reporter,
		store:    store,
		tracker:  tracker,
		hub:      hub,
		origins:  []string{"*"},
		logger:   logger,
	}
}

// SetAllowedOrigins restricts which browser origins may call the API
func (h *Handler) SetAllowedOrigins(origins []string) {
	if len(origins) > 0 {
		h.origins = origins
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Liveness probes
	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// Live award feed
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.origins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
			MaxAge:         300,
		}))
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/users/{userID}/points", h.GetUserPoints)
		r.Get("/status", h.GetStatus)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeStoreError maps a failed store call onto 503 or 500
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	if domain.IsStorageError(err) {
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrStorageUnavailable)
		return
	}
	h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// Root answers the hosting platform's default probe
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheck reports that the process is up. It performs no internal checks.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether the point store is reachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetLeaderboard returns the ranked leaderboard
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = l
	}

	entries, err := h.reporter.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to get leaderboard", "error", err)
		h.writeStoreError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	h.writeSuccess(w, entries)
}

// GetUserPoints returns a user's point total
func (h *Handler) GetUserPoints(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result := UserPoints{UserID: userID}

	user, err := h.store.GetUser(r.Context(), userID)
	switch {
	case err == nil:
		result.DisplayName = user.DisplayName()
	case errors.Is(err, domain.ErrUserNotFound):
		// unknown users have zero points
	default:
		h.logger.Error("failed to read user", "user_id", userID, "error", err)
		h.writeStoreError(w, err)
		return
	}

	result.Points, err = h.store.CountPoints(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count points", "user_id", userID, "error", err)
		h.writeStoreError(w, err)
		return
	}

	h.writeSuccess(w, result)
}

// GetStatus returns user, feed and cooldown statistics
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.CountUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to count users", "error", err)
		h.writeStoreError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"users":            users,
		"feed_connections": h.hub.GetTotalConnections(),
		"cooldown_entries": h.tracker.Len(),
	})
}
