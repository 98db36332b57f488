// Package app is the composition root: it wires config, logging, persistence,
// the API client, the game store, the sync scheduler, and the UI bridge into
// one running client process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"coinfall/client/internal/api"
	"coinfall/client/internal/catalog"
	"coinfall/client/internal/config"
	"coinfall/client/internal/game"
	"coinfall/client/internal/persist"
	"coinfall/client/internal/session"
	"coinfall/client/internal/syncer"
	"coinfall/client/internal/telemetry"
	"coinfall/client/internal/ui"
	"coinfall/client/logging"
	loggingsinks "coinfall/client/logging/sinks"
)

// Config selects the configuration file and an optional override logger.
type Config struct {
	ConfigPath string
	Logger     telemetry.Logger
}

// Run starts the client and blocks until ctx is cancelled or the bridge
// server fails.
func Run(ctx context.Context, appCfg Config) error {
	telemetryLogger := appCfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	cfg, err := config.Load(appCfg.ConfigPath, telemetryLogger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	router, cleanup, err := buildRouter(cfg.Logging)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		cancel()
		cleanup()
	}()

	counters := telemetry.NewCounters()
	playerID := fmt.Sprintf("tg-%d", cfg.Identity.TelegramID)

	journal, err := persist.Open(cfg.JournalPath, playerID)
	if err != nil {
		return fmt.Errorf("open delta journal: %w", err)
	}
	defer func() {
		if cerr := journal.Close(); cerr != nil {
			telemetryLogger.Printf("failed to close delta journal: %v", cerr)
		}
	}()

	shop, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load booster catalog: %w", err)
	}

	client := api.NewClient(api.Config{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout()},
		Logger:     telemetryLogger,
	})
	if cfg.API.Token != "" {
		client.SetToken(cfg.API.Token)
	}

	storeCfg := game.DefaultConfig()
	storeCfg.PlayerID = playerID
	storeCfg.Clock = logging.SystemClock{}
	storeCfg.Publisher = router
	storeCfg.Metrics = counters
	storeCfg.Logger = telemetryLogger
	storeCfg.Journal = journal
	store := game.NewStore(storeCfg)

	scheduler := syncer.New(store, client, syncer.Config{
		Debounce:       cfg.Sync.Debounce(),
		DeltaThreshold: cfg.Sync.DeltaThreshold,
		TapThreshold:   cfg.Sync.TapThreshold,
		Poll:           cfg.Sync.Poll(),
		RetryBase:      cfg.Sync.RetryBase(),
		RetryMax:       cfg.Sync.RetryMax(),
		OfflineAfter:   cfg.Sync.OfflineAfter,
	}, logging.SystemClock{}, router, counters, telemetryLogger, playerID)

	sess := session.New(session.Config{
		Store:     store,
		Backend:   client,
		Catalog:   shop,
		Journal:   journal,
		Scheduler: scheduler,
		Identity: api.TelegramIdentity{
			TelegramID: cfg.Identity.TelegramID,
			FirstName:  cfg.Identity.FirstName,
			LastName:   cfg.Identity.LastName,
			Username:   cfg.Identity.Username,
			ReferredBy: cfg.Identity.ReferredBy,
		},
		Logger: telemetryLogger,
	})

	firstLogin, err := sess.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap session: %w", err)
	}
	if firstLogin {
		telemetryLogger.Printf("first login for %s", playerID)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	schedulerDone := make(chan struct{})
	go func() {
		scheduler.Run(runCtx)
		close(schedulerDone)
	}()

	bridge := ui.NewHandler(sess, ui.HandlerConfig{
		Refresh: cfg.UI.Refresh(),
		Logger:  telemetryLogger,
	})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridge.Handle)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.UI.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			telemetryLogger.Printf("bridge shutdown: %v", serr)
		}
	}()

	telemetryLogger.Printf("bridge listening on %s", srv.Addr)
	err = srv.ListenAndServe()

	// The scheduler's shutdown path flushes whatever is still buffered.
	cancelRun()
	<-schedulerDone

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge server failed: %w", err)
	}
	return nil
}

func buildRouter(cfg config.Logging) (*logging.Router, func(), error) {
	logCfg := logging.DefaultConfig()
	if len(cfg.Sinks) > 0 {
		logCfg.EnabledSinks = cfg.Sinks
	}
	logCfg.MinimumSeverity = parseSeverity(cfg.Severity)

	cleanup := func() {}
	var named []logging.NamedSink
	if logCfg.HasSink("console") {
		named = append(named, logging.NamedSink{
			Name: "console",
			Sink: loggingsinks.NewConsoleSink(os.Stdout, logCfg.Console),
		})
	}
	if logCfg.HasSink("json") {
		path := cfg.FilePath
		if path == "" {
			path = "coinfall.log.ndjson"
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open json log %s: %w", path, err)
		}
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: loggingsinks.NewJSON(file, logCfg.JSON.FlushInterval),
		})
		cleanup = func() { file.Close() }
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logCfg, named)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return router, cleanup, nil
}

func parseSeverity(raw string) logging.Severity {
	switch raw {
	case "debug":
		return logging.SeverityDebug
	case "warn":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}
