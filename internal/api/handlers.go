// Package api exposes the engine over HTTP for the local UI.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/example/progress-sync/internal/catalog"
	"github.com/example/progress-sync/internal/engine"
	"github.com/example/progress-sync/internal/progress"
	"github.com/example/progress-sync/internal/readiness"
	syncstate "github.com/example/progress-sync/internal/sync"
)

// Identity accepts the user's sign-in.
type Identity interface {
	SignIn(userID string) bool
}

// SyncStatus reports the remote sync state.
type SyncStatus interface {
	Status() syncstate.Status
}

// Deps are the collaborators the handlers call into. Identity, Sync and
// Health are optional.
type Deps struct {
	Engine   *engine.Engine
	Scorer   readiness.Scorer
	Identity Identity
	Sync     SyncStatus
	Health   func(ctx context.Context) error
	Logger   zerolog.Logger
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// LoginResponse is returned by POST /session/login.
type LoginResponse struct {
	Counted  bool              `json:"counted"`
	Progress progress.Snapshot `json:"progress"`
}

// ClaimResponse is returned by a successful reward claim.
type ClaimResponse struct {
	Reward   catalog.Reward    `json:"reward"`
	Progress progress.Snapshot `json:"progress"`
}

type xpRequest struct {
	Amount int `json:"amount" binding:"required"`
}

type quizRequest struct {
	Score int `json:"score" binding:"min=0"`
	Total int `json:"total" binding:"required,min=1"`
}

type identityRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// Handlers implements the HTTP endpoints.
type Handlers struct {
	deps Deps
}

// NewHandlers constructs the handler set.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// HandleHealth reports dependency health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	if h.deps.Health != nil {
		if err := h.deps.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "UNHEALTHY"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleGetProgress returns the current snapshot.
func (h *Handlers) HandleGetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Engine.Snapshot())
}

// HandleAddXP credits XP.
func (h *Handlers) HandleAddXP(c *gin.Context) {
	var req xpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, func(ctx context.Context) (progress.Snapshot, error) {
		return h.deps.Engine.AddXP(ctx, req.Amount)
	})
}

// HandleCompleteLesson marks a lesson complete.
func (h *Handlers) HandleCompleteLesson(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context) (progress.Snapshot, error) {
		return h.deps.Engine.CompleteLesson(ctx, id)
	})
}

// HandleCompleteScenario marks a scenario complete.
func (h *Handlers) HandleCompleteScenario(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context) (progress.Snapshot, error) {
		return h.deps.Engine.CompleteScenario(ctx, id)
	})
}

// HandleRecordQuiz appends a quiz attempt.
func (h *Handlers) HandleRecordQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, func(ctx context.Context) (progress.Snapshot, error) {
		return h.deps.Engine.RecordQuiz(ctx, req.Score, req.Total)
	})
}

// HandleSubmitProblem records today's problem submission.
func (h *Handlers) HandleSubmitProblem(c *gin.Context) {
	h.respond(c, h.deps.Engine.SubmitProblem)
}

// HandleLogin records a session start.
func (h *Handlers) HandleLogin(c *gin.Context) {
	snap, counted := h.deps.Engine.RecordLogin(c.Request.Context())
	c.JSON(http.StatusOK, LoginResponse{Counted: counted, Progress: snap})
}

// HandleIdentity signs the user in, which triggers the one-time remote merge.
func (h *Handlers) HandleIdentity(c *gin.Context) {
	if h.deps.Identity == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "identity is fixed by configuration", Code: "NOT_SUPPORTED"})
		return
	}
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	accepted := h.deps.Identity.SignIn(req.UserID)
	h.deps.Logger.Info().Str("user", req.UserID).Bool("accepted", accepted).Msg("sign-in received")
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

// HandleSession reports the sync session state.
func (h *Handlers) HandleSession(c *gin.Context) {
	if h.deps.Sync == nil {
		c.JSON(http.StatusOK, syncstate.Status{})
		return
	}
	c.JSON(http.StatusOK, h.deps.Sync.Status())
}

// HandleClaimDaily claims a daily reward.
func (h *Handlers) HandleClaimDaily(c *gin.Context) {
	day, ok := intParam(c, "day")
	if !ok {
		return
	}
	reward, claimed := h.deps.Engine.ClaimDaily(c.Request.Context(), day)
	if !claimed {
		notClaimable(c)
		return
	}
	c.JSON(http.StatusOK, ClaimResponse{Reward: reward, Progress: h.deps.Engine.Snapshot()})
}

// HandleClaimWeekly claims a weekly reward.
func (h *Handlers) HandleClaimWeekly(c *gin.Context) {
	week, ok := intParam(c, "week")
	if !ok {
		return
	}
	reward, claimed := h.deps.Engine.ClaimWeekly(c.Request.Context(), week)
	if !claimed {
		notClaimable(c)
		return
	}
	c.JSON(http.StatusOK, ClaimResponse{Reward: reward, Progress: h.deps.Engine.Snapshot()})
}

// HandleClaimable lists the rewards claimable now.
func (h *Handlers) HandleClaimable(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Engine.Claimable())
}

// HandleReadiness scores the current snapshot.
func (h *Handlers) HandleReadiness(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Scorer.Score(h.deps.Engine.Snapshot()))
}

func (h *Handlers) respond(c *gin.Context, fn func(context.Context) (progress.Snapshot, error)) {
	snap, err := fn(c.Request.Context())
	if err != nil {
		if errors.Is(err, progress.ErrInvalidArgument) {
			badRequest(c, err)
			return
		}
		h.deps.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("mutation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "INTERNAL"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, err)
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_ARGUMENT"})
}

func notClaimable(c *gin.Context) {
	c.JSON(http.StatusConflict, ErrorResponse{Error: "reward is not claimable", Code: "NOT_CLAIMABLE"})
}
