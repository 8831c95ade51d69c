package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/battle"
	"github.com/songzhibin97/callbattle/internal/models"
	"github.com/songzhibin97/callbattle/internal/prediction"
)

type CycleRunner interface {
	RunCycle(ctx context.Context) (*battle.CycleResult, error)
}

type PriceRefresher interface {
	UpdateActiveRound(ctx context.Context) (*battle.PriceUpdateResult, error)
}

type RoundCloser interface {
	Close(ctx context.Context) (*models.RoundResult, error)
}

type PredictionResolver interface {
	ResolveDue(ctx context.Context) (*prediction.ResolveResult, error)
}

// CronHandler exposes the scheduled jobs as HTTP triggers for external schedulers.
type CronHandler struct {
	Cycle    CycleRunner
	Prices   PriceRefresher
	Closer   RoundCloser
	Resolver PredictionResolver
	Logger   *zap.Logger
}

func (h *CronHandler) Register(r *gin.Engine) {
	group := r.Group("/api/cron")
	group.POST("/cycle", h.runCycle)
	group.POST("/prices", h.updatePrices)
	group.POST("/close-round", h.closeRound)
	group.POST("/resolve-predictions", h.resolvePredictions)
}

func (h *CronHandler) runCycle(c *gin.Context) {
	if h.Cycle == nil {
		fail(c, codeJobUnwired, "service unavailable", nil)
		return
	}
	result, err := h.Cycle.RunCycle(c.Request.Context())
	if err != nil {
		h.fail(c, "cycle", err)
		return
	}
	respond(c, result, nil)
}

func (h *CronHandler) updatePrices(c *gin.Context) {
	if h.Prices == nil {
		fail(c, codeJobUnwired, "service unavailable", nil)
		return
	}
	result, err := h.Prices.UpdateActiveRound(c.Request.Context())
	if err != nil {
		h.fail(c, "prices", err)
		return
	}
	respond(c, result, nil)
}

func (h *CronHandler) closeRound(c *gin.Context) {
	if h.Closer == nil {
		fail(c, codeJobUnwired, "service unavailable", nil)
		return
	}
	result, err := h.Closer.Close(c.Request.Context())
	if err != nil {
		h.fail(c, "close-round", err)
		return
	}
	respond(c, result, nil)
}

func (h *CronHandler) resolvePredictions(c *gin.Context) {
	if h.Resolver == nil {
		fail(c, codeJobUnwired, "service unavailable", nil)
		return
	}
	result, err := h.Resolver.ResolveDue(c.Request.Context())
	if err != nil {
		h.fail(c, "resolve-predictions", err)
		return
	}
	respond(c, result, nil)
}

func (h *CronHandler) fail(c *gin.Context, job string, err error) {
	if h.Logger != nil {
		h.Logger.Warn("cron trigger failed", zap.String("job", job), zap.Error(err))
	}
	fail(c, codeJobFailed, err.Error(), map[string]any{"job": job})
}
