package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/ai"
	"github.com/songzhibin97/callbattle/internal/ai/openai"
	"github.com/songzhibin97/callbattle/internal/battle"
	"github.com/songzhibin97/callbattle/internal/configs"
	cronrunner "github.com/songzhibin97/callbattle/internal/cron"
	"github.com/songzhibin97/callbattle/internal/data"
	collectorData "github.com/songzhibin97/callbattle/internal/data/collector"
	"github.com/songzhibin97/callbattle/internal/data/collector/binance"
	"github.com/songzhibin97/callbattle/internal/data/collector/coingecko"
	"github.com/songzhibin97/callbattle/internal/data/collector/dexscreener"
	"github.com/songzhibin97/callbattle/internal/data/storage"
	"github.com/songzhibin97/callbattle/internal/handler"
	"github.com/songzhibin97/callbattle/internal/logger"
	"github.com/songzhibin97/callbattle/internal/prediction"
	"github.com/songzhibin97/callbattle/internal/risk"
	"github.com/songzhibin97/callbattle/internal/strategy"
	"github.com/songzhibin97/callbattle/internal/utils/request"
)

type BattleSystem struct {
	config      *configs.Config
	store       data.Store
	riskManager risk.RiskManager
	manager     *battle.Manager
	prices      *battle.PriceUpdater
	closer      *battle.Closer
	resolver    *prediction.Resolver
	health      handler.Pinger
	log         *zap.Logger
}

func NewBattleSystem(
	config *configs.Config,
	store data.Store,
	collector *collectorData.MultiSourceCollector,
	riskMgr risk.RiskManager,
	narrator ai.Narrator,
	log *zap.Logger,
) *BattleSystem {
	managerSeed, generatorSeed := config.Battle.Seed, config.Battle.Seed
	if generatorSeed != 0 {
		generatorSeed++
	}

	generator := prediction.NewGenerator(collector, store, strategy.NewRand(generatorSeed), log.Named("prediction"))

	var opts []battle.Option
	if narrator != nil {
		opts = append(opts, battle.WithNarrator(narrator, config.AIConfig.Timeout))
		generator.SetNarrator(narrator, config.AIConfig.Timeout)
	}

	return &BattleSystem{
		config:      config,
		store:       store,
		riskManager: riskMgr,
		manager:     battle.NewManager(store, collector, riskMgr, generator, strategy.NewRand(managerSeed), log.Named("manager"), opts...),
		prices:      battle.NewPriceUpdater(store, collector, log.Named("prices")),
		closer:      battle.NewCloser(store, log.Named("closer")),
		resolver:    prediction.NewResolver(collector, store, log.Named("resolver")),
		log:         log,
	}
}

// Run 启动定时任务和 HTTP 服务，直到 ctx 结束
func (s *BattleSystem) Run(ctx context.Context) error {
	// 设置风险参数
	if err := s.riskManager.SetRiskParameters(ctx, &s.config.RiskParams); err != nil {
		return err
	}

	if _, err := s.manager.EnsureActiveRound(ctx); err != nil {
		return err
	}

	var runner *cronrunner.Runner
	if s.config.Cron.Enabled {
		runner = cronrunner.New(s.log.Named("cron"), ctx, s.config.Cron.JobTimeout)
		if err := s.registerJobs(runner); err != nil {
			return err
		}
		runner.Start()
		defer runner.Stop()
	}

	if s.config.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	(&handler.HealthHandler{DB: s.health}).Register(engine)
	(&handler.CronHandler{
		Cycle:    s.manager,
		Prices:   s.prices,
		Closer:   s.closer,
		Resolver: s.resolver,
		Logger:   s.log,
	}).Register(engine)
	(&handler.BattleHandler{Store: s.store, Logger: s.log}).Register(engine)

	srv := &http.Server{
		Addr:              s.config.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *BattleSystem) registerJobs(runner *cronrunner.Runner) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{name: "cycle", spec: s.config.Cron.Cycle, run: func(ctx context.Context) error {
			_, err := s.manager.RunCycle(ctx)
			return err
		}},
		{name: "prices", spec: s.config.Cron.Prices, run: func(ctx context.Context) error {
			_, err := s.prices.UpdateActiveRound(ctx)
			return err
		}},
		{name: "close-round", spec: s.config.Cron.CloseRound, run: func(ctx context.Context) error {
			_, err := s.closer.Close(ctx)
			return err
		}},
		{name: "resolve-predictions", spec: s.config.Cron.ResolvePredictions, run: func(ctx context.Context) error {
			_, err := s.resolver.ResolveDue(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		if job.spec == "" {
			s.log.Info("cron job disabled", zap.String("job", job.name))
			continue
		}
		if _, err := runner.Add(job.name, job.spec, job.run); err != nil {
			return err
		}
	}
	return nil
}

var (
	flagconf string
	envOnly  bool
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.BoolVar(&envOnly, "env-only", false, "skip the config file and read BATTLE_* env vars only")
}

func main() {
	flag.Parse()

	// 加载配置
	config, err := configs.Load(flagconf, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(config.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// 初始化各个组件
	if config.MarketData.Timeout > 0 {
		request.Request.SetTimeout(config.MarketData.Timeout)
	}
	collector := collectorData.NewMultiSourceCollector(
		[]collectorData.MarketSource{
			dexscreener.NewDexScreenerDataSource(config.MarketData.DexScreenerURL, config.MarketData.Chain),
		},
		[]collectorData.PriceSource{
			coingecko.NewCoinGeckoDataSource(config.MarketData.CoinGeckoURL),
			binance.NewBinancePriceSource(config.MarketData.BinanceURL),
		},
		config.MarketData.BatchSize,
		log.Named("collector"),
	)

	var (
		store  data.Store
		health handler.Pinger
	)
	if config.Database.DSN == "" {
		log.Warn("database.dsn is empty, using in-memory store")
		store = storage.NewMemoryStorage()
	} else {
		pg, err := storage.NewPostgresStorage(config.Database.DSN)
		if err != nil {
			log.Fatal("init storage failed", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()
		store, health = pg, pg
	}

	var narrator ai.Narrator
	if config.AIConfig.Enabled {
		narrator = openai.NewOpenAINarrator(config.AIConfig.APIKey, config.AIConfig.BaseURL, config.AIConfig.Model)
		log.Info("ai narrator enabled", zap.String("model", config.AIConfig.Model))
	}

	riskManager := risk.NewBasicRiskManager(config.RiskParams)

	system := NewBattleSystem(&config, store, collector, riskManager, narrator, log)
	system.health = health

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 运行系统
	if err := system.Run(ctx); err != nil {
		log.Error("system error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
