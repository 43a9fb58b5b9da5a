package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/climbing-points/internal/config"
	"github.com/climbing-points/internal/domain"
	"github.com/climbing-points/internal/service"
	"github.com/climbing-points/internal/websocket"
)

// PointsService is the engine surface the API exposes
type PointsService interface {
	LoadUserData(ctx context.Context, caller *domain.Identity) (*domain.UserView, error)
	SubmitRoute(ctx context.Context, caller *domain.Identity, in service.RouteInput) (*service.SubmitResult, error)
	DeleteRoute(ctx context.Context, caller *domain.Identity, routeID string) (*service.DeleteResult, error)
	ConsumeTicket(ctx context.Context, caller *domain.Identity, identityKey string, tickets int64, contest domain.ContestDetails) (*service.ConsumeResult, error)
	GetLotteryWinCount(ctx context.Context, userKey string) (int, error)
	GetAllLotteryWinCounts(ctx context.Context) (map[string]domain.WinCount, error)
	LoadGlobalStats(ctx context.Context) (*domain.GlobalStats, error)
	GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

// Sessions resolves bearer tokens to identities
type Sessions interface {
	Create(ctx context.Context, identity domain.Identity) (string, error)
	Get(ctx context.Context, token string) (*domain.Identity, error)
	Delete(ctx context.Context, token string) error
}

// Settings exposes the accounting tables in effect
type Settings interface {
	Loaded() bool
	PointsPerTicket() int64
	GradeOptions() []domain.GradeOption
	BonusOptions() []domain.BonusOption
}

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the points API
type Handler struct {
	points   PointsService
	sessions Sessions
	settings Settings
	hub      *websocket.Hub
	auth     config.AuthConfig
	server   config.ServerConfig
	checks   map[string]ReadinessCheck
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(
	points PointsService,
	sessions Sessions,
	settings Settings,
	hub *websocket.Hub,
	cfg *config.Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		points:   points,
		sessions: sessions,
		settings: settings,
		hub:      hub,
		auth:     cfg.Auth,
		server:   cfg.Server,
		checks:   make(map[string]ReadinessCheck),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
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

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.identify)

		r.Get("/config", h.GetConfig)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/providers", h.ListProviders)
			r.Post("/mock", h.MockSignIn)
			r.Delete("/session", h.SignOut)
		})

		r.Get("/me", h.GetMe)

		r.Route("/routes", func(r chi.Router) {
			r.Post("/", h.SubmitRoute)
			r.Delete("/{routeID}", h.DeleteRoute)
		})

		r.Route("/lottery", func(r chi.Router) {
			r.Post("/consume", h.ConsumeTicket)
			r.Get("/wins", h.ListWinCounts)
			r.Get("/wins/{userKey}", h.GetWinCount)
		})

		r.Get("/stats", h.GetStats)
		r.Get("/leaderboard", h.GetLeaderboard)

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidMediaType):
		return http.StatusUnsupportedMediaType
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports an engine error. Internal failures are logged
// and hidden behind a generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error(op+" failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
		h.writeError(w, status, domain.ErrInternalError)
		return
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		h.logger.Error(op+" failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
	h.writeError(w, status, err)
}

// HandleWebSocket upgrades to a WebSocket, subscribing to any ?topic= given
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var topics []string
	for _, t := range r.URL.Query()["topic"] {
		if !websocket.IsTopic(t) {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		topics = append(topics, t)
	}
	websocket.ServeWs(h.hub, h.logger, w, r, topics...)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections":       h.hub.GetTotalConnections(),
		"leaderboard_subscribers": h.hub.GetSubscriberCount(websocket.TopicLeaderboard),
		"stats_subscribers":       h.hub.GetSubscriberCount(websocket.TopicStats),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck probes every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    failed,
			Error:   domain.ErrStoreUnavailable.Error(),
		})
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"status":        "ready",
		"config_loaded": h.settings.Loaded(),
	})
}

// GetConfig returns the accounting tables clients render forms from
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"points_per_ticket": h.settings.PointsPerTicket(),
		"grade_options":     h.settings.GradeOptions(),
		"bonus_options":     h.settings.BonusOptions(),
		"loaded":            h.settings.Loaded(),
		"max_photo_bytes":   service.MaxPhotoBytes,
	})
}
