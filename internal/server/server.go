/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the bridge together and exposes its HTTP surface:
// MSX content pages, audio delivery, the websocket push channel, and the
// REST control API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/audio"
	"github.com/friendsincode/msx_bridge/internal/cache"
	"github.com/friendsincode/msx_bridge/internal/config"
	"github.com/friendsincode/msx_bridge/internal/events"
	"github.com/friendsincode/msx_bridge/internal/identity"
	"github.com/friendsincode/msx_bridge/internal/logbuffer"
	"github.com/friendsincode/msx_bridge/internal/mahost"
	"github.com/friendsincode/msx_bridge/internal/notify"
	"github.com/friendsincode/msx_bridge/internal/player"
	"github.com/friendsincode/msx_bridge/internal/streamreg"
	"github.com/friendsincode/msx_bridge/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	host      *mahost.Client
	library   mahost.Library
	directory *player.Directory
	registry  *streamreg.Registry
	pipeline  *audio.Pipeline
	fanout    *audio.FanOut
	notifier  *notify.Notifier
	reaper    *player.Reaper
	logBuffer *logbuffer.Buffer
	bus       *events.Bus

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware)
	router.Use(telemetry.TracingMiddleware("msx-bridge-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket upgrades and audio deliveries; those run
	// for the length of a track or longer.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			if isStreamingPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		// WriteTimeout 0 for streaming; stops abort stale deliveries
		// through per-response write deadlines instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func isStreamingPath(path string) bool {
	return strings.HasPrefix(path, "/stream/") || strings.HasPrefix(path, "/msx/audio/")
}

// corsMiddleware lets the MSX app, loaded from the vendor's domain, call
// the bridge cross-origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hostRegistrar adapts the host client to the directory's Registrar.
type hostRegistrar struct {
	host *mahost.Client
}

func (a hostRegistrar) Register(ctx context.Context, key identity.Key, name string) error {
	return a.host.Register(ctx, mahost.PlayerDescriptor{
		PlayerID:     string(key),
		Name:         name,
		Manufacturer: "Media Station X",
		Model:        "MSX Bridge",
	})
}

func (a hostRegistrar) Unregister(ctx context.Context, key identity.Key) error {
	return a.host.Unregister(ctx, string(key))
}

func (s *Server) initDependencies() error {
	s.host = mahost.NewClient(s.cfg.MAURL, s.logger)

	s.library = s.host
	if s.cfg.RedisAddr != "" {
		libCache, err := cache.New(cache.Config{
			RedisAddr:      s.cfg.RedisAddr,
			RedisPassword:  s.cfg.RedisPassword,
			RedisDB:        s.cfg.RedisDB,
			ListingTTL:     cache.DefaultListingTTL,
			TracksTTL:      cache.DefaultTracksTTL,
			SearchTTL:      cache.DefaultSearchTTL,
			DisableOnError: true,
		}, s.logger)
		if err != nil {
			return err
		}
		s.DeferClose(libCache.Close)
		s.library = cache.NewLibrary(s.host, libCache)
	}

	codec, err := audio.CodecFor(s.cfg.OutputFormat)
	if err != nil {
		return err
	}

	s.registry = streamreg.New(s.bus, s.logger)
	s.directory = player.NewDirectory(hostRegistrar{host: s.host}, s.bus, s.logger)

	s.pipeline = audio.NewPipeline(s.host, s.host.NowPlaying, s.registry, codec,
		s.cfg.FFmpegBin, s.cfg.PrebufferBytes, s.logger)
	s.pipeline.SetBytesObserver(func(n int) { telemetry.StreamedBytes.Add(float64(n)) })
	s.fanout = audio.NewFanOut(s.pipeline, s.logger)

	var stopShared func(identity.Key)
	if s.cfg.GroupStreamMode == config.GroupStreamShared {
		stopShared = s.fanout.Stop
	}
	s.notifier = notify.New(s.registry, stopShared,
		s.cfg.StopBroadcastFirst, s.cfg.ShowStopNotification, s.bus, s.logger)

	s.reaper = player.NewReaper(s.directory, s.cfg.IdleTimeout, s.cfg.ReapInterval,
		func(ctx context.Context, key identity.Key) {
			s.notifier.NotifyStop(key)
		})

	return nil
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.reaper.Run(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runNowPlayingPoller(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runGaugeUpdater(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runReapCounter(ctx)
	}()
}

// runGaugeUpdater keeps the coarse domain gauges in step with reality.
func (s *Server) runGaugeUpdater(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			telemetry.ActivePlayers.Set(float64(s.directory.Len()))
			telemetry.ActiveStreams.Set(float64(s.registry.Total()))
			telemetry.PushClients.Set(float64(s.notifier.TotalSubscribers()))
		}
	}
}

func (s *Server) runReapCounter(ctx context.Context) {
	sub := s.bus.Subscribe(events.EventPlayerReaped)
	defer s.bus.Unsubscribe(events.EventPlayerReaped, sub)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			telemetry.PlayersReaped.Inc()
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

// Router returns the HTTP handler, used by tests.
func (s *Server) Router() http.Handler { return s.router }

// HTTPServer returns the configured listener.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// LogBuffer returns the server's log buffer.
func (s *Server) LogBuffer() *logbuffer.Buffer { return s.logBuffer }

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
