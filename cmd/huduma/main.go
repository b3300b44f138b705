// Package main starts the huduma marketplace HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hudumahub/huduma-system/internal/catalog"
	"github.com/hudumahub/huduma-system/internal/config"
	"github.com/hudumahub/huduma-system/internal/dedupe"
	"github.com/hudumahub/huduma-system/internal/handler"
	"github.com/hudumahub/huduma-system/internal/middleware"
	"github.com/hudumahub/huduma-system/internal/mpesa"
	"github.com/hudumahub/huduma-system/internal/notify"
	"github.com/hudumahub/huduma-system/internal/repository"
	"github.com/hudumahub/huduma-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var gateway service.PaymentGateway
	if cfg.PaymentsConfigured() {
		gateway = mpesa.NewClient(mpesa.Options{
			BaseURL:        cfg.MpesaBaseURL,
			ConsumerKey:    cfg.MpesaConsumerKey,
			ConsumerSecret: cfg.MpesaSecret,
			Passkey:        cfg.MpesaPasskey,
			Shortcode:      cfg.MpesaShortcode,
			CallbackURL:    cfg.MpesaCallbackURL,
		})
	} else {
		sugar.Warn("payment gateway not configured, submissions will skip the payment hand-off")
	}

	var dedupeStore *dedupe.Store
	if cfg.RedisAddr != "" {
		dedupeStore, err = dedupe.New(cfg.RedisAddr)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer dedupeStore.Close()
	}

	notifier := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)

	svc := service.NewService(repo, catalog.New(repo), gateway, notifier, dedupeStore, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, cfg.AdminEmails)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting huduma server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
