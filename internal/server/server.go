// Package server wires every dependency together and runs the HTTP server.
//
// COMPOSITION ROOT:
// New is the only place that knows concrete types. It builds, in order:
//
//	store (mongo | sqlite) ─┐
//	upstream client ────────┤
//	codec, file cache ──────┼─→ service.UserService → handler.UserHandler → routes
//	mailer, publisher ──────┤
//	worker pool ────────────┘
//
// Every other package sees its collaborators only through interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/user-avatar-service/internal/auth"
	"github.com/sakif/user-avatar-service/internal/codec"
	"github.com/sakif/user-avatar-service/internal/config"
	"github.com/sakif/user-avatar-service/internal/events"
	"github.com/sakif/user-avatar-service/internal/filecache"
	"github.com/sakif/user-avatar-service/internal/handler"
	"github.com/sakif/user-avatar-service/internal/metrics"
	"github.com/sakif/user-avatar-service/internal/middleware"
	"github.com/sakif/user-avatar-service/internal/notify"
	"github.com/sakif/user-avatar-service/internal/pool"
	"github.com/sakif/user-avatar-service/internal/repository"
	mongoRepo "github.com/sakif/user-avatar-service/internal/repository/mongo"
	sqliteRepo "github.com/sakif/user-avatar-service/internal/repository/sqlite"
	"github.com/sakif/user-avatar-service/internal/service"
	"github.com/sakif/user-avatar-service/internal/upstream"
)

const (
	shutdownTimeout = 30 * time.Second
	drainTimeout    = 10 * time.Second
	taskTimeout     = 30 * time.Second
)

// Server owns the router and every resource that must be released on shutdown.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	store     repository.AvatarRepository
	publisher events.Publisher
	workers   *pool.Pool
}

// New opens the store and the broker connection and builds the router.
// On error, anything already opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	m := metrics.New()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := events.New(cfg.BrokerURI, cfg.EventQueue, logger)
	if err != nil {
		store.Close(context.Background())
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	c, err := codec.New(cfg.HashSecret)
	if err != nil {
		publisher.Close()
		store.Close(context.Background())
		return nil, fmt.Errorf("creating codec: %w", err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		metrics:   m,
		store:     store,
		publisher: publisher,
		workers: pool.New(pool.Options{
			Workers:     cfg.WorkerCount,
			TaskTimeout: taskTimeout,
		}, logger, m),
	}

	userService := service.NewUserService(service.Deps{
		Directory: upstream.New(upstream.Config{
			BaseURL:      cfg.UpstreamBaseURL,
			Timeout:      cfg.UpstreamTimeout,
			ClientID:     cfg.UpstreamClientID,
			ClientSecret: cfg.UpstreamClientSecret,
			TokenURL:     cfg.UpstreamTokenURL,
		}),
		Avatars: store,
		Codec:   c,
		Files:   filecache.New(cfg.UploadsDir, cfg.UpstreamTimeout),
		Notifier: notify.New(notify.SMTPConfig{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPassword,
			Secure:   cfg.EmailSecure,
		}, logger),
		Events:      publisher,
		Dispatcher:  s.workers,
		Metrics:     m,
		Logger:      logger,
		FillTimeout: 2 * cfg.UpstreamTimeout,
	})

	if err := s.setupRoutes(handler.NewUserHandler(userService, logger)); err != nil {
		s.Close(context.Background())
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// openStore picks the backend from DB_URI.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.AvatarRepository, error) {
	kind, target, err := cfg.Store()
	if err != nil {
		return nil, err
	}

	switch kind {
	case config.StoreMongo:
		store, err := mongoRepo.New(ctx, target, logger)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return store, nil
	default:
		if target != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(target)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return db, nil
	}
}

// setupRoutes mounts middleware and routes.
//
//	GET    /healthz                    liveness
//	GET    /metrics                    Prometheus
//	POST   /api/users                  create user
//	GET    /api/user/{userId}          get user
//	GET    /api/user/{userId}/avatar   get avatar
//	DELETE /api/user/{userId}/avatar   remove avatar
//
// /api requires a bearer token only when AUTH_JWT_SECRET is set.
func (s *Server) setupRoutes(users *handler.UserHandler) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", handler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	var tokens *auth.TokenService
	if s.config.AuthJWTSecret != "" {
		var err error
		if tokens, err = auth.NewTokenService(s.config.AuthJWTSecret); err != nil {
			return err
		}
	} else {
		s.logger.Warn("AUTH_JWT_SECRET not set, /api routes are open")
	}

	s.router.Route("/api", func(r chi.Router) {
		if tokens != nil {
			r.Use(auth.RequireAuth(tokens, s.logger))
		}
		r.Post("/users", users.HandleCreate)
		r.Get("/user/{userId}", users.HandleGetUser)
		r.Get("/user/{userId}/avatar", users.HandleGetAvatar)
		r.Delete("/user/{userId}/avatar", users.HandleRemoveAvatar)
	})

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close drains queued side effects, then closes the broker and the store.
// All steps run even if one fails.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if err := s.workers.Stop(drainTimeout); err != nil {
		errs = append(errs, fmt.Errorf("draining workers: %w", err))
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing publisher: %w", err))
	}
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then shuts down in order: stop
// accepting requests, wait for in-flight ones, run Close.
func (s *Server) Start() error {
	// Requests may wait on the directory and then on the image download.
	writeTimeout := 2*s.config.UpstreamTimeout + 5*time.Second

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      otelhttp.NewHandler(s.router, s.config.ServiceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("uploads", s.config.UploadsDir),
			slog.Int("workers", s.config.WorkerCount),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		closeErr := s.Close(context.Background())
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(fmt.Errorf("server error: %w", err), closeErr)
		}
		return closeErr

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(ctx)
		if err := s.Close(ctx); err != nil {
			s.logger.Error("releasing resources failed", slog.String("error", err.Error()))
		}
		if shutdownErr != nil {
			return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
