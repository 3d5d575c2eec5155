// Package main запускает HTTP-сервер сервиса расшифровки медицинских документов.
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

	"github.com/Nikita777nike/RazMedBot/internal/clock"
	"github.com/Nikita777nike/RazMedBot/internal/config"
	"github.com/Nikita777nike/RazMedBot/internal/handler"
	"github.com/Nikita777nike/RazMedBot/internal/middleware"
	"github.com/Nikita777nike/RazMedBot/internal/notify"
	"github.com/Nikita777nike/RazMedBot/internal/payment"
	"github.com/Nikita777nike/RazMedBot/internal/repository"
	"github.com/Nikita777nike/RazMedBot/internal/service"
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

	payments := payment.NewClient(cfg.PaymentAddress, cfg.PaymentToken, cfg.PaymentTestMode)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.NotifyAddress != "" {
		notifier = notify.NewGateway(cfg.NotifyAddress, logger)
	}

	svc := service.NewService(repo, payments, notifier, clock.NewSystem(), logger, service.Options{
		ReferredDiscountPercent: cfg.ReferredDiscountPercent,
		ReferrerBonusPercent:    cfg.ReferrerBonusPercent,
		ClarificationWindow:     time.Duration(cfg.ClarificationWindowHours) * time.Hour,
		BotLink:                 cfg.BotLink,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.GatewaySecret, cfg.OperatorKey)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая уборка брошенных анкет
	g.Go(func() error {
		svc.StartSessionSweeper(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting razmedbot server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
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
