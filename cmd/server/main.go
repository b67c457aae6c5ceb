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

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/config"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/server"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/simulation"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Server.DevMode})
	logger.SetGlobalLogger(log)

	timeout := time.Duration(cfg.MarketData.TimeoutSeconds) * time.Second
	sources := []marketdata.PriceSource{
		marketdata.NewYahooSource(),
		marketdata.NewStooqSource(timeout),
	}
	if cfg.MarketData.FinnhubAPIKey != "" {
		sources = append(sources, marketdata.NewFinnhubSource(cfg.MarketData.FinnhubAPIKey, timeout))
	}

	provider := marketdata.NewProvider(marketdata.ProviderConfig{
		Timeout:              timeout,
		MaxPriceJumpPercent:  cfg.MarketData.MaxPriceJumpPercent,
		FetchConcurrency:     cfg.MarketData.FetchConcurrency,
		RateWindow:           time.Duration(cfg.MarketData.RateWindowSeconds) * time.Second,
		MaxRequestsPerWindow: cfg.MarketData.MaxRequestsPerWindow,
	}, sources, marketdata.NewSyntheticSource(time.Now().UnixNano()), log)

	loader := marketdata.NewHistoricalLoader(timeout, log)
	store := simulation.NewStore(cfg.Persistence.DataDir, log)
	manager := simulation.NewManager(cfg, provider, loader, store, log)

	if err := manager.InitializeAll(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}

	if cfg.SchedulerOn() {
		manager.StartSchedulers()
	} else {
		log.Warn().Msg("schedulers disabled, competitions will not advance")
	}
	manager.StartAutosave()

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		TimeoutSeconds: cfg.Server.TimeoutSeconds,
		DevMode:        cfg.Server.DevMode,
		Log:            log,
		Manager:        manager,
		Provider:       provider,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		exitCode = 1
	case err := <-manager.Fatal():
		log.Error().Err(err).Msg("simulation fault, shutting down")
		exitCode = 1
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
		exitCode = 1
	}
	if err := manager.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown, final snapshot may be incomplete")
		exitCode = 1
	}

	os.Exit(exitCode)
}
