/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slidify/internal/api"
	"github.com/friendsincode/slidify/internal/auth"
	"github.com/friendsincode/slidify/internal/cache"
	"github.com/friendsincode/slidify/internal/collab"
	"github.com/friendsincode/slidify/internal/config"
	"github.com/friendsincode/slidify/internal/db"
	"github.com/friendsincode/slidify/internal/eventbus"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/leadership"
	"github.com/friendsincode/slidify/internal/media"
	"github.com/friendsincode/slidify/internal/telemetry"
	"github.com/friendsincode/slidify/internal/web"
)

const (
	dbMetricsInterval   = 15 * time.Second
	orphanSweepInterval = time.Hour
	orphanGrace         = 24 * time.Hour
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	metrics    *http.Server
	closers    []func() error

	db         *gorm.DB
	cache      *cache.Cache
	bus        events.Broker
	media      *media.Service
	gateway    *gateway.Gateway
	auth       *auth.Provider
	api        *api.API
	webHandler *web.Handler
	orphans    *media.OrphanScanner
	elector    leadership.Elector

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket and upload connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" || isUploadPath(r) {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Keep header deadline to protect against slowloris, but do not enforce a full-body
		// read deadline so large image batches are not terminated mid-request.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		// WriteTimeout set to 0 for the event stream - handlers manage their own deadlines
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", telemetry.Handler())
		srv.metrics = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

// isUploadPath reports whether r posts an image batch, which may outlast the request timeout.
func isUploadPath(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	return r.URL.Path == "/api/v1/slideshows" ||
		(strings.HasPrefix(r.URL.Path, "/api/v1/upload-sessions/") && strings.HasSuffix(r.URL.Path, "/images"))
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		frameAncestors := "'none'"
		xFrameOptions := "DENY"
		if isEmbeddableViewer(r) {
			// Shared viewer links may be embedded by other sites.
			frameAncestors = "*"
			xFrameOptions = ""
		}
		if xFrameOptions != "" {
			w.Header().Set("X-Frame-Options", xFrameOptions)
		}
		w.Header().Set("Content-Security-Policy", "default-src 'self' 'unsafe-inline' data: blob: https: http:; connect-src 'self' ws: wss:; frame-ancestors "+frameAncestors+"; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func isEmbeddableViewer(r *http.Request) bool {
	return r.URL.Path == "/" && r.URL.Query().Get("view") != "" && r.URL.Query().Get("embed") == "1"
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.RegisterCallbacks(database, s.logger); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return err
	}

	blobs, err := media.NewService(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.media = blobs
	if fsStorage, ok := blobs.Filesystem(); ok {
		// Ensure media directory exists
		if err := os.MkdirAll(fsStorage.Root(), 0755); err != nil {
			return fmt.Errorf("failed to create media directory %s: %w", fsStorage.Root(), err)
		}
		s.logger.Info().Str("path", fsStorage.Root()).Msg("media directory ready")
		s.orphans = media.NewOrphanScanner(database, fsStorage, orphanGrace, s.logger)
	}
	if err := blobs.CheckStorageAccess(); err != nil {
		s.logger.Warn().Err(err).Msg("media storage not reachable")
	}

	// Redis cache for slideshows, music and taglines; degrades to pass-through.
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	s.cache = cache.New(cacheCfg, s.logger)
	s.DeferClose(s.cache.Close)

	s.bus = s.newBus()
	s.elector = s.newElector()

	s.gateway = gateway.New(database, s.bus, blobs, s.cache, s.logger)
	s.auth = auth.NewProvider(s.gateway, s.bus, auth.ProviderConfig{
		Secret:     []byte(s.cfg.JWTSigningKey),
		SessionTTL: s.cfg.TokenTTL,
	}, s.logger)
	s.api = api.New(s.gateway, s.auth, s.cfg, s.logger)

	webHandler, err := web.NewHandler(s.gateway, s.cfg.PublicBaseURL, collab.LimitsFromConfig(s.cfg), s.logger)
	if err != nil {
		return err
	}
	s.webHandler = webHandler
	return nil
}

// newBus picks the change bus. Redis and NATS fan notifications out across
// instances; both fall back to local delivery when the broker is down.
func (s *Server) newBus() events.Broker {
	switch s.cfg.EventBus {
	case config.EventBusRedis:
		rcfg := eventbus.DefaultRedisConfig()
		rcfg.Addr = s.cfg.RedisAddr
		rcfg.Password = s.cfg.RedisPassword
		rcfg.DB = s.cfg.RedisDB
		bus := eventbus.NewRedisBus(rcfg, s.cfg.InstanceID, s.logger)
		s.DeferClose(bus.Close)
		return bus
	case config.EventBusNATS:
		ncfg := eventbus.DefaultNATSConfig()
		ncfg.URL = s.cfg.NATSURL
		bus := eventbus.NewNATSBus(ncfg, s.cfg.InstanceID, s.logger)
		s.DeferClose(bus.Close)
		return bus
	default:
		return events.NewBus()
	}
}

// newElector picks who runs the orphan sweep. Instances sharing a Redis bus
// contest a lease; otherwise every instance is its own leader.
func (s *Server) newElector() leadership.Elector {
	if s.orphans == nil || s.cfg.EventBus != config.EventBusRedis {
		return leadership.Always{}
	}
	ecfg := leadership.DefaultConfig()
	ecfg.RedisAddr = s.cfg.RedisAddr
	ecfg.RedisPassword = s.cfg.RedisPassword
	ecfg.RedisDB = s.cfg.RedisDB
	ecfg.InstanceID = s.cfg.InstanceID
	election, err := leadership.NewElection(ecfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("leader election unavailable, sweeping on this instance")
		return leadership.Always{}
	}
	election.Start(context.Background())
	s.DeferClose(election.Stop)
	return election
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer returns the Prometheus listener, or nil when SLIDIFY_METRICS_BIND is empty.
func (s *Server) MetricsServer() *http.Server {
	return s.metrics
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(dbMetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	if s.orphans != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runOrphanSweeper(ctx)
		}()
	}
}

// runOrphanSweeper removes blobs left behind by aborted batch uploads.
func (s *Server) runOrphanSweeper(ctx context.Context) {
	ticker := time.NewTicker(orphanSweepInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", orphanSweepInterval).Msg("orphan sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("orphan sweeper stopped")
			return
		case now := <-ticker.C:
			if !s.elector.IsLeader() {
				s.logger.Debug().Msg("orphan sweep skipped, not leader")
				continue
			}
			result, err := s.orphans.Sweep(ctx, now)
			if err != nil {
				s.logger.Error().Err(err).Msg("orphan sweep failed")
				continue
			}
			telemetry.OrphansRemovedTotal.Add(float64(result.Removed))
			if result.Removed > 0 {
				s.logger.Info().Int("scanned", result.Scanned).Int("removed", result.Removed).Int64("bytes", result.Bytes).Msg("orphan sweep finished")
			}
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

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Locally stored blobs; S3 deployments serve them from the bucket or CDN.
	if fsStorage, ok := s.media.Filesystem(); ok {
		files := http.StripPrefix("/media/", http.FileServer(http.Dir(fsStorage.Root())))
		s.router.Handle("/media/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
			files.ServeHTTP(w, r)
		}))
	}

	s.api.Routes(s.router)
	s.webHandler.Routes(s.router)
}
