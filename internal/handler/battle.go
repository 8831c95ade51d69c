package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/data"
	"github.com/songzhibin97/callbattle/internal/models"
	"github.com/songzhibin97/callbattle/internal/performance"
)

// BattleHandler serves the read side: scoreboard, calls, rounds and predictions.
type BattleHandler struct {
	Store  data.Store
	Logger *zap.Logger
}

func (h *BattleHandler) Register(r *gin.Engine) {
	group := r.Group("/api")
	group.GET("/stats", h.stats)
	group.GET("/calls", h.listCalls)
	group.GET("/rounds/active", h.activeRound)
	group.GET("/round-results", h.listRoundResults)
	group.GET("/predictions", h.listPredictions)
}

func (h *BattleHandler) stats(c *gin.Context) {
	calls, err := h.Store.ListCalls(c.Request.Context(), "")
	if err != nil {
		h.internal(c, "list calls failed", err)
		return
	}
	board := performance.Leaderboard(performance.Compute(calls))
	respond(c, board, map[string]any{"starting_balance": models.StartingBalance})
}

func (h *BattleHandler) listCalls(c *gin.Context) {
	agent := models.Agent(strings.ToLower(strings.TrimSpace(c.Query("agent"))))
	if agent != "" && agent != models.AgentOpus && agent != models.AgentCodex {
		fail(c, codeInvalidAgent, "unknown agent", map[string]any{"agent": agent})
		return
	}

	calls, err := h.Store.ListCalls(c.Request.Context(), agent)
	if err != nil {
		h.internal(c, "list calls failed", err)
		return
	}
	if calls == nil {
		calls = []models.Call{}
	}
	respond(c, calls, map[string]any{"count": len(calls)})
}

func (h *BattleHandler) activeRound(c *gin.Context) {
	round, err := h.Store.GetActiveRound(c.Request.Context())
	if err != nil {
		h.internal(c, "get active round failed", err)
		return
	}
	if round == nil {
		fail(c, codeNoActiveRound, "no active round", nil)
		return
	}

	calls, err := h.Store.ListRoundCalls(c.Request.Context(), round.ID)
	if err != nil {
		h.internal(c, "list round calls failed", err)
		return
	}
	respond(c, gin.H{
		"round": round,
		"stats": performance.Leaderboard(performance.Compute(calls)),
	}, map[string]any{"calls": len(calls)})
}

func (h *BattleHandler) listRoundResults(c *gin.Context) {
	results, err := h.Store.ListRoundResults(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		h.internal(c, "list round results failed", err)
		return
	}
	if results == nil {
		results = []models.RoundResult{}
	}
	respond(c, results, nil)
}

func (h *BattleHandler) listPredictions(c *gin.Context) {
	predictions, err := h.Store.ListPredictions(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		h.internal(c, "list predictions failed", err)
		return
	}
	if predictions == nil {
		predictions = []models.Prediction{}
	}
	respond(c, predictions, nil)
}

func (h *BattleHandler) internal(c *gin.Context, msg string, err error) {
	if h.Logger != nil {
		h.Logger.Warn(msg, zap.Error(err))
	}
	fail(c, codeStoreFailed, msg, nil)
}
