package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron       *cron.Cron
	logger     *zap.Logger
	baseCtx    context.Context
	jobTimeout time.Duration
}

// New builds a runner whose specs carry a seconds field and are read in UTC.
// Each run gets its own context derived from baseCtx and bounded by
// jobTimeout when positive.
func New(logger *zap.Logger, baseCtx context.Context, jobTimeout time.Duration) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:     logger,
		baseCtx:    baseCtx,
		jobTimeout: jobTimeout,
	}
}

// Add registers a named job. A failing job is logged; the schedule continues.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		r.run(name, job)
	})
}

func (r *Runner) run(name string, job func(context.Context) error) {
	ctx := r.baseCtx
	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		r.logger.Error("cron job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	r.logger.Debug("cron job done", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}

func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", r.Entries()))
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
