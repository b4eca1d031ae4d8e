package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	wsadapter "reputationkit/adapters/websocket"
	"reputationkit/core"
	"reputationkit/engine"
	"reputationkit/leaderboard"
	"reputationkit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigins enables CORS for the given origins (use "*" for any).
	AllowCORSOrigins []string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitRPM is the allowed requests per minute per client key. Zero disables limiting.
	RateLimitRPM int
	// Metrics, if set, is served on /metrics.
	Metrics prometheus.Gatherer
	Logger  zerolog.Logger
}

// ActivityRequest is the body of POST /users/{id}/activity.
type ActivityRequest = core.Activity

type RegisterRequest struct {
	ReferralCode string `json:"referral_code,omitempty"`
}

type SpendRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// MutationResponse carries the committed snapshot and the delta that produced it.
type MutationResponse struct {
	Snapshot core.Snapshot `json:"snapshot"`
	Delta    core.Delta    `json:"delta"`
}

type LeaderboardResponse struct {
	Metric  leaderboard.Metric  `json:"metric"`
	Entries []leaderboard.Entry `json:"entries"`
}

type handlers struct {
	svc *engine.Service
	log zerolog.Logger
}

// NewMux builds an http.Handler exposing the reputation REST API and WebSocket stream.
// Routes:
//   - POST {prefix}/users/{id}
//   - GET  {prefix}/users/{id}
//   - POST {prefix}/users/{id}/activity
//   - POST {prefix}/users/{id}/spend
//   - GET  {prefix}/leaderboard?metric=points_total&limit=10
//   - GET  {prefix}/levels/{points}
//   - GET  {prefix}/healthz
//   - GET  {prefix}/metrics
//   - WS   {prefix}/ws
func NewMux(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	h := &handlers{svc: svc, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(opts.AllowCORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowCORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Route(withPrefix(opts.PathPrefix, "/"), func(r chi.Router) {
		// health and metrics stay open for probes and scrapers
		r.Get("/healthz", h.healthCheck)
		if opts.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
		}

		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(apiKeyAuth(opts.APIKeys))
			}
			if opts.RateLimitRPM > 0 {
				r.Use(httprate.Limit(opts.RateLimitRPM, time.Minute,
					httprate.WithKeyFuncs(clientKey),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
					}),
				))
			}
			if hub != nil {
				r.Handle("/ws", wsadapter.Handler(hub))
			}
			r.Route("/users/{id}", func(r chi.Router) {
				r.Post("/", h.register)
				r.Get("/", h.getUser)
				r.Post("/activity", h.recordActivity)
				r.Post("/spend", h.spend)
			})
			r.Get("/leaderboard", h.leaderboard)
			r.Get("/levels/{points}", h.level)
		})
	})
	return r
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	// the body is optional
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return
	}
	snap, err := h.svc.Register(r.Context(), core.UserID(chi.URLParam(r, "id")), req.ReferralCode)
	if err != nil && snap.UserID == "" {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		// account exists; referral binding failed
		h.log.Info().Err(err).Str("user_id", string(snap.UserID)).Msg("referral not applied")
		writeJSONStatus(w, http.StatusCreated, map[string]any{"snapshot": snap, "referral_error": err.Error()})
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"snapshot": snap})
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.GetSnapshot(r.Context(), core.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, snap)
}

func (h *handlers) recordActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(string(req.Action)) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "action is required", nil)
		return
	}
	if !req.Action.IsUserActivity() {
		writeError(w, http.StatusBadRequest, "invalid_action", fmt.Sprintf("%s is granted by the system and cannot be submitted", req.Action), nil)
		return
	}
	snap, d, err := h.svc.Record(r.Context(), core.UserID(chi.URLParam(r, "id")), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, MutationResponse{Snapshot: snap, Delta: d})
}

func (h *handlers) spend(w http.ResponseWriter, r *http.Request) {
	var req SpendRequest
	if !decode(w, r, &req) {
		return
	}
	snap, d, err := h.svc.Spend(r.Context(), core.UserID(chi.URLParam(r, "id")), req.Amount, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, MutationResponse{Snapshot: snap, Delta: d})
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := leaderboard.ParseMetric(q.Get("metric"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit := 10
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer", nil)
			return
		}
	}
	entries, err := h.svc.Leaderboard(r.Context(), metric, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, LeaderboardResponse{Metric: metric, Entries: entries})
}

func (h *handlers) level(w http.ResponseWriter, r *http.Request) {
	points, err := strconv.ParseInt(chi.URLParam(r, "points"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_points", "points must be an integer", nil)
		return
	}
	writeJSON(w, h.svc.Level(points))
}

// healthCheck verifies storage answers by loading a probe user that is
// never created.
func (h *handlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.GetSnapshot(r.Context(), "healthcheck_probe")
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{"storage": "ok"},
	}
	if err != nil && !errors.Is(err, core.ErrUserNotFound) {
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
		writeJSONStatus(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, status)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	}
	writeError(w, status, code, err.Error(), nil)
}

// classify maps domain errors to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, core.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, core.ErrUnknownMetric):
		return http.StatusBadRequest, "unknown_metric"
	case errors.Is(err, core.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrUserExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, core.ErrSelfReferral):
		return http.StatusBadRequest, "self_referral"
	case errors.Is(err, core.ErrAlreadyReferred):
		return http.StatusConflict, "already_referred"
	case errors.Is(err, core.ErrUnknownCode):
		return http.StatusNotFound, "unknown_code"
	case errors.Is(err, core.ErrSystemAction):
		return http.StatusBadRequest, "invalid_action"
	case strings.Contains(err.Error(), "empty user id"):
		return http.StatusBadRequest, "invalid_user"
	}
	return http.StatusInternalServerError, "internal"
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return false
	}
	return true
}

func withPrefix(prefix, path string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return path
	}
	if path == "/" {
		return prefix
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) { writeJSONStatus(w, http.StatusOK, v) }

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}

// apiKeyAuth enforces a shared API key list.
func apiKeyAuth(apiKeys []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
				return
			}
			if _, ok := allowed[key]; !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// clientKey uses the API key if present, otherwise the remote IP.
func clientKey(r *http.Request) (string, error) {
	if key := extractAPIKey(r); key != "" {
		return "key:" + key, nil
	}
	return httprate.KeyByIP(r)
}
