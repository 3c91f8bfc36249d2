package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/account"
	"github.com/maziin00/quotekeeper/alert"
	"github.com/maziin00/quotekeeper/config"
	"github.com/maziin00/quotekeeper/fairprice"
	"github.com/maziin00/quotekeeper/gateway"
	"github.com/maziin00/quotekeeper/logging"
	"github.com/maziin00/quotekeeper/metrics"
	"github.com/maziin00/quotekeeper/orchestrator"
	"github.com/maziin00/quotekeeper/orderbook"
	"github.com/maziin00/quotekeeper/position"
	"github.com/maziin00/quotekeeper/quote"
	"github.com/maziin00/quotekeeper/reference"
	"github.com/maziin00/quotekeeper/requote"
	"github.com/maziin00/quotekeeper/venue"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "path to the agent's YAML config file")
	dryRun := flag.Bool("dryRun", false, "log intended actions instead of submitting them to the venue")
	metricsAddr := flag.String("metricsAddr", "", "override the config's metrics listen address")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Outputs: cfg.Log.Outputs})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Close()

	collector := metrics.New()

	alertManager := buildAlertManager(cfg)

	symbol := strings.ToUpper(cfg.Symbol)
	restClient := gateway.NewBinanceLikeClient(cfg.Gateway.BaseURL, symbol, cfg.Gateway.APIKey, cfg.Gateway.APISecret)
	client := buildVenueClient(restClient, *dryRun)

	constraints, err := client.Constraints(symbol)
	if err != nil {
		logger.LogEvent("startup_error", map[string]any{"symbol": symbol, "error": err.Error()})
		log.Fatalf("fetch symbol constraints: %v", err)
	}

	book := orderbook.New(symbol, restClient.FetchDepthSnapshot)
	depthStream := gateway.NewDepthStream(cfg.Gateway.WSURL, symbol)

	estimator := fairprice.New(fairPriceCapacity(cfg), warmupMinSamples(cfg))

	feeds := buildReferenceFeeds(cfg, symbol)

	// sharedRefresh collapses the account stream's order-resync fetch and
	// the position tracker's reconcile fetch onto one in-flight user
	// snapshot request whenever they land close together.
	sharedRefresh := account.NewSharedRefresh(func(ctx context.Context) (venue.UserSnapshot, error) {
		return client.FetchSnapshot(ctx, symbol)
	})

	accountTransport := gateway.NewUserDataTransport(cfg.Gateway.WSURL, gateway.NewListenKeyClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey))
	accountStream := account.New(accountTransport, sharedRefresh.Fetch)

	tracker := position.New(symbol, func(ctx context.Context, marketID string) (venue.PositionSnapshot, error) {
		snap, err := sharedRefresh.Fetch(ctx)
		if err != nil {
			return venue.PositionSnapshot{}, err
		}
		for _, p := range snap.Positions {
			if p.MarketID == marketID {
				return p, nil
			}
		}
		return venue.PositionSnapshot{MarketID: marketID}, nil
	}, decimal.NewFromFloat(cfg.CloseThresholdUSD), func() decimal.Decimal {
		mid, ok := book.BBO()
		if !ok {
			return decimal.Zero
		}
		return estimator.FairPrice(mid.Mid)
	})

	orch := orchestrator.New(orchestrator.Config{
		MarketID: symbol,
		QuoteParams: quote.Params{
			SpreadBps:      decimal.NewFromFloat(cfg.SpreadBps),
			OrderSizeUSD:   decimal.NewFromFloat(cfg.OrderSizeUSD),
			CloseSpreadBps: decimal.NewFromFloat(cfg.TakeProfitBps),
			Constraints:    constraints,
		},
		RequoteThresholds: requote.Thresholds{
			MaxAge:     time.Duration(cfg.MinOrderAgeMs) * time.Millisecond,
			MaxDiffBps: decimal.NewFromFloat(cfg.RequoteThresholdBps),
		},
		WarmupMinSamples:     warmupMinSamples(cfg),
		OrderSyncInterval:    time.Duration(cfg.OrderSyncIntervalMs) * time.Millisecond,
		StatusInterval:       time.Duration(cfg.StatusIntervalMs) * time.Millisecond,
		PositionSyncInterval: time.Duration(cfg.PositionSyncInterval) * time.Millisecond,
	}, orchestrator.Components{
		Book:      book,
		Estimator: estimator,
		Feeds:     feeds,
		Account:   accountStream,
		Position:  tracker,
		Venue:     client,
		OnLog:     logger.LogEvent,
		OnAlert: func(level, message string) {
			if err := sendAlert(alertManager, level, message); err != nil {
				logger.LogError(err, map[string]any{"context": "alert_delivery_failed"})
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := collector.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
			logger.LogError(err, map[string]any{"context": "metrics_server"})
		}
	}()

	go func() {
		if err := depthStream.Run(ctx, book); err != nil && ctx.Err() == nil {
			logger.LogError(err, map[string]any{"context": "depth_stream"})
		}
	}()

	if cfg.HotReload.Enabled {
		watcher := &config.Watcher{Path: *cfgPath}
		if err := watcher.Start(ctx, func(update config.LiveSafeUpdate) {
			logger.LogEvent("config_hot_reload", map[string]any{"symbol": symbol})
		}); err != nil {
			logger.LogError(err, map[string]any{"context": "config_watch_start"})
		}
		defer watcher.Stop()
	}

	if err := orch.Start(ctx); err != nil {
		logger.LogError(err, map[string]any{"context": "orchestrator_start"})
		log.Fatalf("start orchestrator: %v", err)
	}
	logger.LogEvent("agent_started", map[string]any{"symbol": symbol, "dryRun": *dryRun})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.LogEvent("agent_stopping", map[string]any{"symbol": symbol})
	_ = depthStream.Close()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := orch.Stop(stopCtx); err != nil {
		logger.LogError(err, map[string]any{"context": "orchestrator_stop"})
		os.Exit(1)
	}
}

func sendAlert(manager *alert.Manager, level, message string) error {
	switch strings.ToUpper(level) {
	case "WARNING", "WARN":
		return manager.SendWarning(message, nil)
	case "ERROR":
		return manager.SendError(message, nil)
	case "CRITICAL":
		return manager.SendCritical(message, nil)
	default:
		return manager.SendInfo(message, nil)
	}
}

func buildAlertManager(cfg config.AppConfig) *alert.Manager {
	channels := []alert.Channel{alert.NewConsoleChannel(cfg.Symbol)}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel(cfg.Symbol, cfg.Alert.WebhookURL))
	}
	return alert.NewManager(channels, 30*time.Second)
}

func buildVenueClient(client *gateway.BinanceLikeClient, dryRun bool) venue.LocalVenueClient {
	if dryRun {
		return dryRunClient{inner: client}
	}
	return client
}

// dryRunClient logs every atomic action instead of submitting it,
// returning synthetic successes so the rest of the control loop runs
// exactly as it would live.
type dryRunClient struct {
	inner venue.LocalVenueClient
}

func (d dryRunClient) SubmitAtomic(ctx context.Context, actions []venue.Action) ([]venue.ActionResult, error) {
	results := make([]venue.ActionResult, len(actions))
	for i, a := range actions {
		log.Printf("dry run: %+v", a)
		id := a.OrderID
		if a.Kind == venue.ActionPlace {
			id = fmt.Sprintf("dryrun-%d", i)
		}
		results[i] = venue.ActionResult{Kind: a.Kind, Success: true, OrderID: id}
	}
	return results, nil
}

func (d dryRunClient) FetchSnapshot(ctx context.Context, marketID string) (venue.UserSnapshot, error) {
	return d.inner.FetchSnapshot(ctx, marketID)
}

func (d dryRunClient) Constraints(marketID string) (venue.SymbolConstraints, error) {
	return d.inner.Constraints(marketID)
}

func buildReferenceFeeds(cfg config.AppConfig, symbol string) []venue.ReferenceFeed {
	switch strings.ToLower(cfg.ReferenceFeed) {
	case "coinbase":
		return []venue.ReferenceFeed{reference.New("coinbase", gateway.NewCoinbaseTransport(symbol))}
	case "none", "":
		return []venue.ReferenceFeed{reference.None{}}
	default:
		return []venue.ReferenceFeed{reference.None{}}
	}
}

func fairPriceCapacity(cfg config.AppConfig) int {
	if cfg.FairPriceWindowMs <= 0 {
		return 1
	}
	return cfg.FairPriceWindowMs / 1000
}

func warmupMinSamples(cfg config.AppConfig) int {
	if cfg.WarmupSeconds <= 0 {
		return 1
	}
	return cfg.WarmupSeconds
}
