package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/auth"
	"github.com/frahmantamala/production-management/internal/dashboard"
	"github.com/frahmantamala/production-management/internal/inventory"
	"github.com/frahmantamala/production-management/internal/notification"
	"github.com/frahmantamala/production-management/internal/production"
	"github.com/frahmantamala/production-management/internal/role"
	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/frahmantamala/production-management/internal/transport/middleware"
	"github.com/frahmantamala/production-management/internal/transport/rest"
	"github.com/frahmantamala/production-management/internal/user"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and websocket notifications`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

var runPoller bool

func init() {
	httpServerCmd.Flags().BoolVar(&runPoller, "poller", true, "deliver due scheduled notifications from this process")
}

func startHTTPServer() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()
	cfg := deps.Config

	hub := notification.NewHub(deps.Auth, deps.Principals, cfg.Server.Origins(), deps.Logger)
	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{
		MaxWorkers:     cfg.Notification.MaxWorkers,
		JobQueueSize:   cfg.Notification.JobQueueSize,
		WebhookURL:     cfg.Notification.WebhookURL,
		WebhookTimeout: cfg.Notification.WebhookTimeout,
	}, hub, deps.Logger)
	notifications := deps.NotificationService(dispatcher, hub)

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		hub.Run(ctx)
	}()
	if runPoller {
		background.Add(1)
		go func() {
			defer background.Done()
			notification.RunPoller(ctx, notifications, cfg.Notification.PollInterval, deps.Logger)
		}()
	}

	router := chi.NewRouter()
	setupRoutes(deps, router, hub, notifications)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Received signal, shutting down...")
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	// handlers still running may enqueue notifications; drain them first
	deps.Bus.Wait()
	dispatcher.Shutdown()
	background.Wait()

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies, router *chi.Mux, hub *notification.Hub, notifications *notification.Service) {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)

	authHandler := auth.NewHandler(deps.Auth, deps.Users, deps.Principals, auth.CookieConfig{
		Secure: cfg.Security.CookieSecure,
		Domain: cfg.Security.CookieDomain,
		Path:   "/api/v1/auth",
	})

	health := rest.NewHealthHandler(deps.DB.DB)
	if deps.Redis != nil {
		health.WithCheck("redis", func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		})
	}

	opts := rest.Options{
		Logger:  deps.Logger,
		Origins: cfg.Server.Origins(),
		Health:  health,
	}
	if cfg.Observability.Metrics.Enabled {
		opts.Metrics = middleware.NewHTTPMetrics(deps.Registry)
		opts.MetricsPath = cfg.Observability.Metrics.Path
		opts.MetricsHandler = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
	}

	rest.RegisterAllRoutes(router, rest.Handlers{
		Auth:         authHandler,
		RBAC:         auth.NewRBACAuthorization(deps.Logger),
		User:         user.NewHandler(base, deps.Users),
		Role:         role.NewHandler(base, deps.Roles),
		Inventory:    inventory.NewHandler(base, deps.Inventory),
		Production:   production.NewHandler(base, deps.Production),
		Notification: notification.NewHandler(base, notifications),
		Audit:        audit.NewHandler(base, deps.Audit),
		Dashboard:    dashboard.NewHandler(base, deps.Dashboard),
		Hub:          hub,
	}, opts)
}
