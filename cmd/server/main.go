// Package main is the entry point for the TradeLab venue daemon: a synthetic
// trading venue driven by programmable stub rules, with the portfolio and
// admin HTTP API, the websocket order-entry endpoint, and the reconciliation
// ledger behind it.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tradelab/internal/config"
	"github.com/aristath/tradelab/internal/engine"
	"github.com/aristath/tradelab/internal/server"
	"github.com/aristath/tradelab/pkg/logger"
)

func main() {
	// Load configuration first to get the log level.
	cfg, err := config.Load()
	if err != nil {
		// Use a fallback logger so the configuration error is still reported.
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Str("environment", string(cfg.Environment)).Msg("Starting TradeLab")

	// Assemble the venue, its transports, the ledger and the bus pumps.
	eng, err := engine.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble engine")
	}
	if err := eng.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start engine")
	}

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Registry:   eng.Registry,
		Ledger:     eng.Ledger,
		Book:       eng.Book,
		Calendar:   eng.Calendar,
		Cycle:      eng.Cycle,
		Clock:      eng.Clock,
		Translator: eng.Agent,
		Websocket:  eng.WS,
	})

	// Start server in a goroutine so shutdown signals can be handled below.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop the engine first so no venue response races the server shutdown,
	// then give in-flight HTTP requests time to finish.
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
