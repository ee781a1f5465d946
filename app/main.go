package main

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

	"github.com/lysyi3m/bid-comb/app/api"
	"github.com/lysyi3m/bid-comb/app/cfg"
	"github.com/lysyi3m/bid-comb/app/database"
	"github.com/lysyi3m/bid-comb/app/dispatch"
	"github.com/lysyi3m/bid-comb/app/engine"
	"github.com/lysyi3m/bid-comb/app/g2b"
	"github.com/lysyi3m/bid-comb/app/mailer"
	"github.com/lysyi3m/bid-comb/app/subscription"
	"github.com/lysyi3m/bid-comb/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	setupLogging(appConfig.Debug)

	if err := run(appConfig); err != nil {
		slog.Error("Bid Comb stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appConfig *cfg.Cfg) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting Bid Comb", "version", appConfig.Version, "timezone", appConfig.Timezone, "anchor", appConfig.Anchor)

	anchor, err := engine.ParseAnchor(appConfig.Anchor)
	if err != nil {
		return err
	}

	if appConfig.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(appConfig.DBPath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.NewConnection(appConfig.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database ready", "path", appConfig.DBPath, "schema_version", version, "dirty", dirty)

	noticeRepo := database.NewNoticeStore(db)
	subscriptionRepo := database.NewSubscriptionStore(db)
	logRepo := database.NewNotificationLogStore(db)
	runRepo := database.NewRunStore(db)

	configCache := subscription.NewConfigCache(appConfig.SubscriptionsDir)
	syncTask := tasks.NewSyncSubscriptionsTask("startup", configCache, subscriptionRepo)
	syncTask.Start()
	if err := syncTask.Execute(ctx); err != nil {
		return err
	}

	source := g2b.NewClient(g2b.Options{
		BaseURL:    appConfig.G2BBaseURL,
		ServiceKey: appConfig.G2BServiceKey,
		UserAgent:  appConfig.UserAgent,
		Timeout:    appConfig.G2BTimeout,
		Location:   appConfig.Location,
	})

	transport, err := mailer.New(mailer.Options{
		Host:          appConfig.SMTPHost,
		Port:          appConfig.SMTPPort,
		Username:      appConfig.SMTPUsername,
		Password:      appConfig.SMTPPassword,
		From:          appConfig.MailFrom,
		SubjectPrefix: appConfig.MailSubjectPrefix,
		Location:      appConfig.Location,
	})
	if err != nil {
		return fmt.Errorf("failed to configure mailer: %w", err)
	}

	var lock engine.Locker = engine.NewLocalLock()
	if appConfig.RedisURL != "" {
		client, err := engine.NewRedisClient(ctx, appConfig.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		lock = engine.NewRedisLock(client, "digest", time.Hour)
	}

	eng := engine.New(engine.Options{
		Keywords:          appConfig.Keywords,
		FallbackRecipient: appConfig.FallbackRecipient,
		Anchor:            anchor,
		Location:          appConfig.Location,
		PageSize:          appConfig.G2BPageSize,
		MaxPages:          appConfig.G2BMaxPages,
		FetchWorkers:      appConfig.FetchWorkers,
		FetchRetries:      appConfig.FetchRetries,
		PendingLookback:   appConfig.PendingLookback,
	}, engine.Deps{
		Source:        source,
		Notices:       noticeRepo,
		Subscriptions: subscriptionRepo,
		Logs:          logRepo,
		Runs:          runRepo,
		Dispatcher:    dispatch.NewDispatcher(transport, noticeRepo, logRepo, appConfig.DispatchWorkers),
		Lock:          lock,
	})

	if appConfig.Once {
		report, err := eng.Run(ctx)
		if err != nil {
			return fmt.Errorf("run %s aborted: %w", report.RunID, err)
		}
		if report.Failed > 0 {
			slog.Warn("Run completed with delivery failures", "run_id", report.RunID, "failed_recipients", report.FailedRecipients)
		}
		return nil
	}

	scheduler := tasks.NewScheduler(tasks.SchedulerOptions{
		Spec:         anchor.CronSpec(),
		Location:     appConfig.Location,
		WorkerCount:  1,
		SyncInterval: appConfig.SyncInterval,
	}, eng, configCache, subscriptionRepo)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	handler := api.NewHandler(noticeRepo, subscriptionRepo, logRepo, runRepo, configCache, eng, scheduler)
	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      api.NewServer(handler, appConfig.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	slog.Info("Bid Comb started", "window", eng.Window().String())

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case serveErr = <-serverErrChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}
