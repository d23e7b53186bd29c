// Package app wires the ChatBuddy components into a running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ashureev/chatbuddy/internal/api"
	"github.com/ashureev/chatbuddy/internal/availability"
	"github.com/ashureev/chatbuddy/internal/chat"
	"github.com/ashureev/chatbuddy/internal/config"
	"github.com/ashureev/chatbuddy/internal/fallback"
	"github.com/ashureev/chatbuddy/internal/gemini"
	"github.com/ashureev/chatbuddy/internal/identity"
	"github.com/ashureev/chatbuddy/internal/middleware"
	"github.com/ashureev/chatbuddy/internal/notify"
	"github.com/ashureev/chatbuddy/internal/orchestrator"
	"github.com/ashureev/chatbuddy/internal/persona"
	"github.com/ashureev/chatbuddy/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of a ChatBuddy process.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	repo       store.Repository
	client     *gemini.Client
	monitor    *availability.Monitor
	hub        *notify.Hub
	transcript chat.ConversationLogger
	svc        *chat.Service
	health     *health.Server

	stops []func()
}

// New opens the database and builds the chat service. channel tags the
// transcript events (chat.ChannelHTTP or chat.ChannelCLI).
func New(cfg *config.Config, channel string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(context.Background()); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}

	catalog, err := persona.LoadCatalog()
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("load persona catalog: %w", err)
	}

	transcript, err := chat.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("initialize conversation logger: %w", err)
	}

	client := gemini.NewClient(cfg.Gemini, cfg.Retry, nil, logger)
	monitor := availability.NewMonitor(client, cfg.Availability, logger)
	hub := notify.NewHub(logger)

	svc, err := chat.NewService(cfg.Chat, chat.Deps{
		Catalog: catalog,
		Client:  client,
		Monitor: monitor,
		Backoff: orchestrator.NewBackoff(cfg.Backoff),
		Local:   fallback.NewResponder(),
		Preferences: func(userID string) persona.Preferences {
			return store.PreferencesFor(repo, userID)
		},
		Publisher:  hub,
		Transcript: transcript,
		Channel:    channel,
		Logger:     logger,
	})
	if err != nil {
		_ = transcript.Close()
		_ = repo.Close()
		return nil, fmt.Errorf("initialize chat service: %w", err)
	}

	if !client.Enabled() {
		logger.Warn("GEMINI_API_KEY not set, running in fallback-only mode")
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		repo:       repo,
		client:     client,
		monitor:    monitor,
		hub:        hub,
		transcript: transcript,
		svc:        svc,
		health:     health.NewServer(),
	}, nil
}

// Service returns the chat service.
func (a *App) Service() *chat.Service { return a.svc }

// Monitor returns the availability monitor.
func (a *App) Monitor() *availability.Monitor { return a.monitor }

// Repository returns the persistence layer.
func (a *App) Repository() store.Repository { return a.repo }

// Start launches the background workers: the availability poller, the idle
// conversation sweeper and the user retention worker. They stop with ctx.
func (a *App) Start(ctx context.Context) {
	a.stops = append(a.stops,
		a.svc.WatchAvailability(),
		availability.BindHealth(a.monitor, a.health),
	)
	go a.monitor.Run(ctx)
	a.svc.StartSweeper(ctx, chat.DefaultSweepInterval)
	StartRetentionWorker(ctx, a.repo, a.cfg.UserRetention, DefaultRetentionInterval, a.logger)
}

// Router builds the HTTP handler tree.
func (a *App) Router() http.Handler {
	isDev := a.cfg.IsDevelopment()

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(a.cfg.AllowedOrigins))
	r.Use(identity.Middleware(a.repo, isDev))

	api.NewHandler(a.svc, a.cfg.Chat, a.logger).RegisterRoutes(r)

	events := notify.NewHandler(a.hub, a.statusEvent, a.cfg.AllowedOrigins, isDev)
	r.Get("/ws/events", events.ServeHTTP)

	return r
}

func (a *App) statusEvent() any {
	status := a.svc.Status()
	return chat.Event{Type: chat.EventTypeStatus, Status: &status}
}

// Serve runs the HTTP and gRPC health servers until ctx is done or either
// server fails, then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	// No WriteTimeout: /ws/events connections are long-lived.
	srv := &http.Server{
		Addr:        ":" + a.cfg.Port,
		Handler:     a.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+a.cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, a.health)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		a.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.logger.Info("Shutting down gracefully...")
	a.health.Shutdown()
	a.hub.Close()
	gs.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("http shutdown: %w", err))
	}
	return serveErr
}

// Close releases the transcript writer and the database.
func (a *App) Close() error {
	for _, stop := range a.stops {
		stop()
	}
	a.stops = nil
	a.hub.Close()
	return errors.Join(a.transcript.Close(), a.repo.Close())
}
