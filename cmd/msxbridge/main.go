/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/msx_bridge/internal/config"
	"github.com/friendsincode/msx_bridge/internal/logbuffer"
	"github.com/friendsincode/msx_bridge/internal/logging"
	"github.com/friendsincode/msx_bridge/internal/server"
	"github.com/friendsincode/msx_bridge/internal/telemetry"
	"github.com/friendsincode/msx_bridge/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "msxbridge",
	Short: "MSX Bridge - Music Assistant on Smart TVs",
	Long:  "MSX Bridge turns any TV running Media Station X into a Music Assistant playback target: browse the library, push playback, and stream re-encoded audio.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MSX bridge server",
	Long:  "Start the HTTP server that serves MSX content pages, audio streams, and the websocket push channel",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bridge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("msxbridge " + version.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuf := logbuffer.New(5000)
	logger = logging.SetupWithWriter(cfg.Environment, logBuf.Writer())

	logger.Info().Str("version", version.Version).Msg("MSX Bridge starting")
	go version.CheckLatest(context.Background(), logger)

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "msx-bridge",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsBind != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           telemetry.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", metricsServer.Addr).Msg("Metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(timeoutCtx); err != nil {
			logger.Error().Err(err).Msg("metrics shutdown failed")
		}
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("MSX Bridge stopped")
	return nil
}
