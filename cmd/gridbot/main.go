// Command gridbot runs the automated grid-trading engine: it loads
// configuration, wires the exchange adapter, persistence, selector,
// capital manager, decision engine, risk monitor, and the per-symbol
// worker supervisor, then drives them from a coordinator cycle on a
// fixed interval until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/cache"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/capital"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/coordinator"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/database"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/decision"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/events"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange/sim"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/logging"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/reliability"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/risk"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/scheduler"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/selector"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/sentiment"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/server"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/store"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/store/backup"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/supervisor"
	"github.com/rs/zerolog"
)

// exit codes: 0 clean shutdown, 1 startup failure, 2 forced shutdown
// (the grace period elapsed before every worker stopped).
const (
	exitOK             = 0
	exitStartupFailure = 1
	exitForcedShutdown = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridbot: config load failed: %v\n", err)
		return exitStartupFailure
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logging.SetGlobal(log)

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "gridstate.db"),
		Profile: database.ProfileStandard,
		Name:    "gridstate",
	})
	if err != nil {
		log.Error().Err(err).Msg("gridbot: database open failed")
		return exitStartupFailure
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Error().Err(err).Msg("gridbot: database migration failed")
		return exitStartupFailure
	}

	st := store.New(db, log)

	transport := buildAlertTransport(cfg, log)
	sink := alerts.NewSink(transport, time.Duration(cfg.Risk.AlertCooldownMinutes)*time.Minute)

	bus := events.NewBus()

	client := buildExchangeClient(cfg)

	venues := []domain.Venue{domain.VenueSpot, domain.VenueDerivatives}

	dataCache := cache.NewDataCache(client, domain.VenueSpot, cfg.Cycles.RiskInterval, cache.TTLs{
		Ticker:   cfg.Cycles.CacheTTLTicker,
		Kline:    cfg.Cycles.CacheTTLKlines,
		Balance:  cfg.Cycles.CacheTTLBalances,
	}, log)
	go dataCache.Run(context.Background())

	var sentimentAgg *sentiment.Aggregator
	if cfg.Sentiment.Enabled {
		sources := buildSentimentSources(cfg, log)
		sentimentAgg = sentiment.NewAggregator(sources, sentiment.Config{
			SourceWeights:   cfg.Sentiment.SourceWeights,
			SmoothingWindow: cfg.Sentiment.SmoothingWindow,
			AlertThresholds: sentiment.Thresholds{
				Bullish: cfg.Sentiment.AlertThresholdHigh,
				Bearish: cfg.Sentiment.AlertThresholdLow,
			},
		}, sink, log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sentimentAgg != nil {
		go sentimentAgg.Run(ctx, time.Duration(cfg.Sentiment.FetchIntervalMin)*time.Minute)
	}

	sel := selector.New(client, dataCache, sentimentSourceOrNil(sentimentAgg), venues, cfg.Selector, log)
	capitalMgr := capital.New(client, cfg, capital.VenueDecisionConfig{}, log)
	decisionCache := cache.New()
	decisionEngine := decision.New(nil, decisionCache, time.Minute, 3, log)
	riskMonitor := risk.New(cfg.Risk, sink, log)
	sup := supervisor.New(client, sink, st, bus, nil, cfg, log)

	coord := coordinator.New(client, dataCache, sel, capitalMgr, decisionEngine, riskMonitor, sup, cfg, log)

	sched := scheduler.New(log)
	sched.Register("*/15 * * * *", reliability.NewMaintenanceJob(db, cfg.DataDir, log))
	if backupJob := buildBackupJob(ctx, cfg, db, log); backupJob != nil {
		sched.Register(fmt.Sprintf("*/%d * * * *", max1(cfg.Backup.IntervalMinutes)), backupJob)
	}
	sched.Start()
	defer sched.Stop()

	httpServer := server.New(server.Config{
		Log:        log,
		Config:     cfg,
		Supervisor: sup,
		EventBus:   bus,
		Port:       cfg.HTTPPort,
		DevMode:    cfg.DevMode,
	})
	httpServer.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	coordinatorInterval := cfg.Cycles.CoordinatorInterval
	ticker := time.NewTicker(coordinatorInterval)
	defer ticker.Stop()

	log.Info().Str("mode", string(cfg.OperationMode)).Int("port", cfg.HTTPPort).Msg("gridbot: started")

	coord.RunCycle(ctx)

cycleLoop:
	for {
		select {
		case <-ticker.C:
			coord.RunCycle(ctx)
		case <-sigCh:
			log.Info().Msg("gridbot: shutdown signal received")
			break cycleLoop
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Supervisor.ShutdownGraceSeconds)*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		sup.StopAll()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("gridbot: all workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn().Msg("gridbot: shutdown grace period elapsed with workers still stopping")
		_ = httpServer.Shutdown(shutdownCtx)
		return exitForcedShutdown
	}

	_ = httpServer.Shutdown(shutdownCtx)
	return exitOK
}

// buildExchangeClient returns the shadow/sandbox adapter — the only
// concrete exchange.Client implementation carried in this build (see
// DESIGN.md's internal/exchange entry); a live venue adapter is a
// separate integration left for a future build.
func buildExchangeClient(cfg *config.Config) exchange.Client {
	symbols := make([]domain.SymbolInfo, 0, len(cfg.Selector.PreferredSymbols)*2)
	for _, sym := range cfg.Selector.PreferredSymbols {
		for _, venue := range []domain.Venue{domain.VenueSpot, domain.VenueDerivatives} {
			symbols = append(symbols, domain.SymbolInfo{
				Symbol:            sym,
				Venue:             venue,
				TickSize:          0.01,
				StepSize:          0.0001,
				MinNotional:       10,
				QuantityPrecision: 4,
				PricePrecision:    2,
				MaxLeverage:       20,
			})
		}
	}
	return sim.New(sim.Config{Symbols: symbols, SeedBalance: 100000})
}

// buildAlertTransport returns the alert transport. No webhook URL field
// exists on config.Config yet (see DESIGN.md); log-only alerting until
// one is introduced.
func buildAlertTransport(_ *config.Config, log zerolog.Logger) alerts.Transport {
	return alerts.NewLogTransport(log)
}

// buildSentimentSources wires one sentiment.FeedSource per configured
// feed URL. An operator with no feeds configured still gets a running
// aggregator that always reports the neutral default score.
func buildSentimentSources(cfg *config.Config, log zerolog.Logger) []sentiment.Source {
	timeout := time.Duration(cfg.Sentiment.FeedTimeoutSeconds) * time.Second
	sources := make([]sentiment.Source, 0, len(cfg.Sentiment.FeedURLs))
	for name, url := range cfg.Sentiment.FeedURLs {
		sources = append(sources, sentiment.NewFeedSource(name, sentiment.NewHTTPNewsFetcher(url, timeout)))
	}
	if len(sources) == 0 {
		log.Warn().Msg("gridbot: sentiment enabled but no SENTIMENT_FEED_URLS configured, aggregator will report the neutral default")
	}
	return sources
}

func buildBackupJob(ctx context.Context, cfg *config.Config, db *database.DB, log zerolog.Logger) scheduler.Job {
	if !cfg.Backup.Enabled {
		return nil
	}
	client, err := backup.NewClient(ctx, cfg.Backup.Endpoint, cfg.Backup.Region, cfg.ExchangeAPIKey, cfg.ExchangeAPISecret, cfg.Backup.Bucket)
	if err != nil {
		log.Error().Err(err).Msg("gridbot: backup client init failed, backups disabled")
		return nil
	}
	svc := backup.NewService(client, db.Path(), cfg.Backup.Prefix, log)
	return &scheduler.FuncJob{
		JobName: "gridstate_backup",
		Fn: func(ctx context.Context) error {
			if err := svc.CreateAndUpload(ctx); err != nil {
				return err
			}
			return svc.Rotate(ctx, cfg.Backup.RetentionDays)
		},
	}
}

func sentimentSourceOrNil(a *sentiment.Aggregator) selector.SentimentSource {
	if a == nil {
		return nil
	}
	return a
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
