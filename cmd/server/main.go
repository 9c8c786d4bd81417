package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/api"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/auth"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/config"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/database"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/payment"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/service"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/storage"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/transcribe"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited cleanly")
}

func run() error {
	// Structured logging
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"store_driver", cfg.StoreDriver,
		"staging_path", cfg.StagingPath,
		"max_file_size", cfg.MaxFileSize,
		"stt_provider", cfg.STT.Provider,
		"token_auth", cfg.TokenAuthEnabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// User store
	users, closeStore, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Staging area
	store := storage.NewFileSystemStore(cfg.StagingPath)
	if err := store.EnsureDir(); err != nil {
		return fmt.Errorf("failed to initialize staging: %w", err)
	}
	slog.Info("upload staging initialized", "path", cfg.StagingPath)

	transcriber, err := newTranscriber(cfg.STT)
	if err != nil {
		return err
	}
	slog.Info("transcriber ready", "provider", transcribe.NameOf(transcriber))

	// Identity
	var verifier auth.TokenVerifier
	if cfg.TokenAuthEnabled() {
		v, err := auth.NewVerifier(ctx, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.JWKSURL)
		if err != nil {
			return fmt.Errorf("failed to initialize token verifier: %w", err)
		}
		verifier = v
	}
	var identityWebhook *auth.WebhookVerifier
	if cfg.Webhook.Secret != "" {
		identityWebhook, err = auth.NewWebhookVerifier(cfg.Webhook.Secret)
		if err != nil {
			return err
		}
	} else {
		slog.Warn("identity webhook signature verification disabled (IDENTITY_WEBHOOK_SECRET not set)")
	}

	provider := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		PriceID:       cfg.Stripe.PriceID,
		AmountCents:   cfg.Stripe.AmountCents,
		Currency:      cfg.Stripe.Currency,
		ProductName:   cfg.Stripe.ProductName,
		FrontendURL:   cfg.Stripe.FrontendURL,
	})

	// Services and HTTP router
	handler := api.NewHandler(
		service.NewUserService(users),
		service.NewUploadService(users, store, transcriber, service.UploadOptions{
			MaxFileSize: cfg.MaxFileSize,
			AutoCreate:  cfg.AutoCreateUsers,
		}),
		service.NewBillingService(users, provider),
		identityWebhook,
	)
	e := api.SetupRouter(handler, cfg, verifier)
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.IdleTimeout = 2 * time.Minute

	cleanup := storage.NewCleanupService(store, cfg.SweepInterval, cfg.StagingMaxAge)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return cleanup.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		// Stop accepting new requests, finish in-flight ones
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func openUserStore(ctx context.Context, cfg *config.Config) (service.UserStore, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory user store; records are lost on restart")
		return database.NewMemoryRepository(), func() {}, nil
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrations complete")
	return database.NewRepository(db), db.Close, nil
}

func newTranscriber(cfg config.STTConfig) (transcribe.Transcriber, error) {
	var primary transcribe.Transcriber
	switch cfg.Provider {
	case config.STTPlaceholder:
		return transcribe.Instrumented(transcribe.Placeholder{}), nil
	case config.STTWhisper:
		w, err := transcribe.NewWhisper(cfg.WhisperURL, cfg.Language, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		primary = w
	case config.STTOpenAI:
		o, err := transcribe.NewOpenAI(cfg.OpenAIKey, transcribe.OpenAIOptions{
			Model:    cfg.OpenAIModel,
			Language: cfg.Language,
			BaseURL:  cfg.OpenAIBaseURL,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		primary = o
	default:
		return nil, fmt.Errorf("unknown STT_PROVIDER %q", cfg.Provider)
	}

	primary = transcribe.Instrumented(primary)
	if cfg.FallbackPlaceholder {
		return transcribe.NewFallback(primary, transcribe.Instrumented(transcribe.Placeholder{})), nil
	}
	return primary, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
