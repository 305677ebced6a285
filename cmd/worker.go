package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/production-management/internal/notification"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background worker pools that run outside the HTTP server.`,
}

var notificationWorkerCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Deliver due scheduled notifications to the webhook",
	Long: `Poll for scheduled notifications that are due and deliver them through the
notification webhook. Run the server with --poller=false when this worker is deployed.`,
	Run: func(cmd *cobra.Command, args []string) {
		startNotificationWorker()
	},
}

var (
	maxWorkers   int
	jobQueueSize int
	webhookURL   string
	pollInterval time.Duration
)

func startNotificationWorker() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	cfg := deps.Config.Notification
	dispatcherConfig := notification.DispatcherConfig{
		MaxWorkers:     getIntFlag(maxWorkers, cfg.MaxWorkers),
		JobQueueSize:   getIntFlag(jobQueueSize, cfg.JobQueueSize),
		WebhookURL:     getStringFlag(webhookURL, cfg.WebhookURL),
		WebhookTimeout: cfg.WebhookTimeout,
	}
	interval := cfg.PollInterval
	if pollInterval > 0 {
		interval = pollInterval
	}

	logger := deps.Logger
	if dispatcherConfig.WebhookURL == "" {
		logger.Warn("no webhook configured; due notifications are only marked delivered")
	}
	logger.Info("starting notification worker",
		"max_workers", dispatcherConfig.MaxWorkers,
		"job_queue_size", dispatcherConfig.JobQueueSize,
		"poll_interval", interval,
		"webhook_url", dispatcherConfig.WebhookURL)

	// no websocket clients in this process
	dispatcher := notification.NewDispatcher(dispatcherConfig, nil, logger)
	notifications := deps.NotificationService(dispatcher, nil)

	done := make(chan struct{})
	go func() {
		notification.RunPoller(ctx, notifications, interval, logger)
		close(done)
	}()

	logger.Info("notification worker is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("shutting down notification worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		<-done
		dispatcher.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logger.Info("notification worker pool shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	notificationWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	notificationWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	notificationWorkerCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Notification webhook URL (overrides config)")
	notificationWorkerCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "How often to look for due notifications (overrides config)")

	workerCmd.AddCommand(notificationWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
