package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"commenta.app/cloud/handlers"
	"commenta.app/cloud/internal/auth"
	"commenta.app/cloud/internal/config"
	"commenta.app/cloud/internal/email"
	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/internal/objectstore"
	"commenta.app/cloud/internal/ratelimit"
	"commenta.app/cloud/storage"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if versionBytes, err := os.ReadFile("VERSION"); err == nil {
		version = strings.TrimSpace(string(versionBytes))
	}

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "commenta",
		Short:        "Commenta licensing and billing API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newLicenseCommand(),
		newAdminCommand(),
		newVersionCommand(),
	)
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}

// loadConfig reads the environment and configures logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		FilePath: cfg.LogFile,
	})
	return cfg, nil
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Release:          version,
			TracesSampleRate: 1.0,
		}); err != nil {
			return fmt.Errorf("sentry.Init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	server := handlers.NewServer(handlers.Options{
		Version:             version,
		AppURL:              cfg.AppURL,
		StripeSecretKey:     cfg.StripeSecret,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		StripePriceIDPro:    cfg.StripePriceIDPro,
		AllowedOrigins:      cfg.CORSAllowedOrigins,
	}, buildDeps(cfg, store))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Commenta Cloud API starting", map[string]interface{}{
			"version":         version,
			"port":            cfg.Port,
			"database_driver": cfg.DatabaseDriver,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func buildDeps(cfg *config.Config, store storage.Storage) handlers.Deps {
	deps := handlers.Deps{Store: store}

	if cfg.SupabaseJWTSecret != "" {
		deps.Auth = auth.NewVerifier(cfg.SupabaseJWTSecret)
	} else {
		logger.Warn("SUPABASE_JWT_SECRET not set, dashboard and admin routes are disabled")
	}

	if cfg.SMTPConfigured() {
		deps.Mailer = email.NewSMTPMailer(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			AppURL:   cfg.AppURL,
		})
	} else {
		deps.Mailer = email.NoopMailer{}
	}

	if cfg.StorageConfigured() {
		deps.Objects = objectstore.New(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.StorageBucket)
	}

	if cfg.ValidateRateLimit > 0 {
		deps.Limiter = ratelimit.New(cfg.ValidateRateLimit, cfg.ValidateRateWindow)
	}

	if !cfg.StripeConfigured() {
		logger.Warn("STRIPE_SECRET_KEY not set, checkout is disabled")
	}
	return deps
}
