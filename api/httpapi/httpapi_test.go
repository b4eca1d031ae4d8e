package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "reputationkit/adapters/memory"
	"reputationkit/core"
	"reputationkit/engine"
	"reputationkit/leaderboard"
)

func newTestService() *engine.Service {
	return engine.NewService(engine.DefaultEngine(), mem.New(), engine.NewEventBus(engine.DispatchSync))
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Code
}

func TestRegisterAndGet(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/users/alice", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, handler, http.MethodPost, "/api/users/alice", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_exists", errorCode(t, rec))

	rec = do(t, handler, http.MethodGet, "/api/users/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, core.UserID("alice"), snap.UserID)
	assert.Equal(t, int64(50), snap.PointsTotal)
}

func TestRegisterWithReferralCode(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{})

	require.Equal(t, http.StatusCreated, do(t, handler, http.MethodPost, "/users/alice", "").Code)
	alice, err := svc.GetSnapshot(t.Context(), "alice")
	require.NoError(t, err)

	rec := do(t, handler, http.MethodPost, "/users/bob", `{"referral_code":"`+alice.ReferralCode+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Snapshot core.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Snapshot.ReferredBy)
	assert.Equal(t, core.UserID("alice"), *body.Snapshot.ReferredBy)
}

func TestGetUserNotFound(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})
	rec := do(t, handler, http.MethodGet, "/api/users/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestRecordActivity(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})
	do(t, handler, http.MethodPost, "/api/users/alice", "")

	rec := do(t, handler, http.MethodPost, "/api/users/alice/activity", `{"action":"watchlist_added"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp MutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.Delta.PointsDelta)
	assert.Equal(t, int64(55), resp.Snapshot.PointsTotal)

	rec = do(t, handler, http.MethodPost, "/api/users/alice/activity", `{"action":"trailer_watched"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Delta.Warnings, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, handler, http.MethodPost, "/api/users/alice/activity", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, handler, http.MethodPost, "/api/users/alice/activity", `{bad`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, handler, http.MethodPost, "/api/users/ghost/activity", `{"action":"login"}`).Code)
}

func TestRecordActivityRejectsSystemActions(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{})
	do(t, handler, http.MethodPost, "/users/mallory", "")

	for _, action := range []string{"referral_redeemed", "welcome_bonus", "review_voted"} {
		rec := do(t, handler, http.MethodPost, "/users/mallory/activity", `{"action":"`+action+`","likes_delta":50}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, action)
		assert.Equal(t, "invalid_action", errorCode(t, rec), action)
	}

	snap, err := svc.GetSnapshot(t.Context(), "mallory")
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.PointsTotal)
	assert.Zero(t, snap.Achievements.FriendsReferred)
	assert.Zero(t, snap.Helpfulness.Likes)
}

func TestSpend(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{})
	do(t, handler, http.MethodPost, "/users/alice", "")

	rec := do(t, handler, http.MethodPost, "/users/alice/spend", `{"amount":51}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_balance", errorCode(t, rec))

	rec = do(t, handler, http.MethodPost, "/users/alice/spend", `{"amount":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", errorCode(t, rec))

	rec = do(t, handler, http.MethodPost, "/users/alice/spend", `{"amount":20,"reason":"frame"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp MutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(30), resp.Snapshot.PointsAvailable)
	assert.Equal(t, int64(50), resp.Snapshot.PointsTotal)
}

func TestLeaderboard(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{})
	for _, id := range []string{"a", "b", "c"} {
		do(t, handler, http.MethodPost, "/users/"+id, "")
	}
	_, _, err := svc.Award(t.Context(), "b", 10, "")
	require.NoError(t, err)

	rec := do(t, handler, http.MethodGet, "/leaderboard?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LeaderboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, leaderboard.MetricPointsTotal, resp.Metric)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, core.UserID("b"), resp.Entries[0].UserID)
	assert.Equal(t, 1, resp.Entries[0].Rank)

	rec = do(t, handler, http.MethodGet, "/leaderboard?metric=karma", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_metric", errorCode(t, rec))

	assert.Equal(t, http.StatusBadRequest, do(t, handler, http.MethodGet, "/leaderboard?limit=ten", "").Code)
}

func TestLevelLookup(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{})
	rec := do(t, handler, http.MethodGet, "/levels/100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info core.LevelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, int64(2), info.Level)

	assert.Equal(t, http.StatusBadRequest, do(t, handler, http.MethodGet, "/levels/abc", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"})
	reg.MustRegister(c)
	c.Inc()
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api", Metrics: reg, APIKeys: []string{"k"}})

	rec := do(t, handler, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = do(t, handler, http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "probe_total 1")
}

func TestUnknownRoute(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})
	rec := do(t, handler, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestAPIKeyAuth(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"secret"},
		AllowCORSOrigins: []string{"*"},
	})

	rec := do(t, handler, http.MethodGet, "/api/levels/0", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/levels/0", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/levels/0", "", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{
		PathPrefix:   "/api",
		APIKeys:      []string{"k"},
		RateLimitRPM: 1,
	})

	rec := do(t, handler, http.MethodGet, "/api/levels/0", "", "X-API-Key", "k")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/levels/0", "", "X-API-Key", "k")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))
}

func TestClassify(t *testing.T) {
	status, code := classify(core.ErrConflict)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", code)

	status, code = classify(fmt.Errorf("record: %w", core.ErrSystemAction))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_action", code)

	status, code = classify(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)
}
