package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/progress-sync/internal/catalog"
	"github.com/example/progress-sync/internal/clock"
	"github.com/example/progress-sync/internal/engine"
	"github.com/example/progress-sync/internal/progress"
	"github.com/example/progress-sync/internal/readiness"
	"github.com/example/progress-sync/internal/storage"
	syncstate "github.com/example/progress-sync/internal/sync"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeIdentity struct{ users []string }

func (f *fakeIdentity) SignIn(userID string) bool {
	f.users = append(f.users, userID)
	return len(f.users) == 1
}

type fakeStatus struct{ status syncstate.Status }

func (f fakeStatus) Status() syncstate.Status { return f.status }

type testServer struct {
	router   *gin.Engine
	engine   *engine.Engine
	identity *fakeIdentity
}

func newTestServer(t *testing.T, health func(context.Context) error) testServer {
	t.Helper()
	cat := catalog.Default()
	eng, err := engine.New(context.Background(), storage.NewMemoryLocal(), cat, clock.NewFixed("2024-09-01"), zerolog.New(io.Discard))
	require.NoError(t, err)

	identity := &fakeIdentity{}
	h := NewHandlers(Deps{
		Engine:   eng,
		Scorer:   readiness.NewScorer(cat),
		Identity: identity,
		Sync:     fakeStatus{status: syncstate.Status{UserID: "u1", Merged: true}},
		Health:   health,
		Logger:   zerolog.New(io.Discard),
	})
	return testServer{router: NewRouter(h, zerolog.New(io.Discard)), engine: eng, identity: identity}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)

	s = newTestServer(t, func(context.Context) error { return errors.New("redis down") })
	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNHEALTHY", decode[ErrorResponse](t, w).Code)
}

func TestProgressMutations(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/progress/xp", map[string]int{"amount": 10})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, decode[progress.Snapshot](t, w).XP)

	w = s.do(t, http.MethodPost, "/progress/lessons/4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, progress.IntSet{4}, decode[progress.Snapshot](t, w).CompletedLessons)

	w = s.do(t, http.MethodPost, "/progress/scenarios/2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/progress/quizzes", map[string]int{"score": 0, "total": 3})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/progress/problems", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[progress.Snapshot](t, w)
	assert.Equal(t, 10+engine.LessonXP+engine.ScenarioXP+engine.ProblemXP, snap.XP)
	assert.Len(t, snap.QuizScores, 1)
}

func TestInvalidInputIsBadRequest(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name, path string
		body       any
	}{
		{"negative xp", "/progress/xp", map[string]int{"amount": -5}},
		{"missing xp", "/progress/xp", map[string]int{}},
		{"non numeric lesson", "/progress/lessons/abc", nil},
		{"unknown lesson", "/progress/lessons/400", nil},
		{"score above total", "/progress/quizzes", map[string]int{"score": 4, "total": 3}},
		{"zero total", "/progress/quizzes", map[string]int{"score": 0, "total": 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_ARGUMENT", decode[ErrorResponse](t, w).Code)
		})
	}
	assert.Zero(t, s.engine.Snapshot().XP)
}

func TestLoginAndRewards(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/session/login", nil)
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[LoginResponse](t, w)
	assert.True(t, login.Counted)
	assert.Equal(t, 1, login.Progress.WeeklyProgress)

	w = s.do(t, http.MethodPost, "/session/login", nil)
	assert.False(t, decode[LoginResponse](t, w).Counted)

	w = s.do(t, http.MethodGet, "/rewards/claimable", nil)
	assert.Equal(t, engine.Claimable{Daily: []int{1}, Weekly: []int{}}, decode[engine.Claimable](t, w))

	w = s.do(t, http.MethodPost, "/rewards/daily/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	claim := decode[ClaimResponse](t, w)
	assert.Equal(t, catalog.RewardXP, claim.Reward.Kind)
	assert.Equal(t, progress.IntSet{1}, claim.Progress.ClaimedDailyRewards)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/rewards/daily/1", nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/rewards/daily/2", nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/rewards/weekly/1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/rewards/weekly/x", nil).Code)
}

func TestIdentityAndSession(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/session/identity", map[string]string{"userId": "u1"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"u1"}, s.identity.users)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/session/identity", map[string]string{}).Code)

	w = s.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, syncstate.Status{UserID: "u1", Merged: true}, decode[syncstate.Status](t, w))
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/progress/problems", nil)

	w := s.do(t, http.MethodGet, "/readiness", nil)
	require.Equal(t, http.StatusOK, w.Code)
	r := decode[readiness.Report](t, w)
	assert.Equal(t, 5, r.ProblemSolving)
	assert.Equal(t, 7, r.Consistency)
}
