package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/db"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/router"
	"github.com/ignatzorin/escrow-backend/internal/locker"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/service"
	"github.com/ignatzorin/escrow-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logLevel := "debug"
	if cfg.Env == "production" {
		logLevel = "info"
	}
	logger.Init(logLevel)
	if cfg.Env == "development" {
		logger.SetTextFormatter()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.WithError(err).Fatal("Не удалось подключиться к базе данных")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Log.WithError(err).Error("Ошибка при закрытии соединения с БД")
		}
	}()

	if err := db.RunMigrations(ctx, conn, cfg.MigrationsPath); err != nil {
		logger.Log.WithError(err).Fatal("Не удалось применить миграции")
	}

	ledger, err := chain.NewEthereumLedger(
		ctx,
		cfg.ChainRPCURL,
		cfg.EscrowContractAddress,
		cfg.EscrowOperatorKey,
		cfg.ChainID,
		cfg.ChainConfirmTimeout,
	)
	if err != nil {
		logger.Log.WithError(err).Fatal("Не удалось подключиться к блокчейн-ноде")
	}

	contractRepo := repository.NewContractRepository(conn)
	disputeRepo := repository.NewDisputeRepository(conn)
	notificationRepo := repository.NewNotificationRepository(conn)

	hub := ws.NewHub()

	notificationSvc := service.NewNotificationService(notificationRepo, hub)
	contractSvc := service.NewContractService(contractRepo, notificationSvc)
	negotiationSvc := service.NewNegotiationService(contractRepo, notificationSvc)
	// Общий KeyedMutex: операции эскроу и споров по одному контракту
	// сериализуются между собой.
	locks := locker.New()
	escrowSvc := service.NewEscrowService(contractRepo, ledger, locks, notificationSvc)
	disputeSvc := service.NewDisputeService(disputeRepo, contractRepo, locks, notificationSvc)
	reviewSvc := service.NewReviewService(contractRepo, notificationSvc)

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	contractHandler := handlers.NewContractHandler(contractSvc, negotiationSvc, escrowSvc, reviewSvc)
	disputeHandler := handlers.NewDisputeHandler(disputeSvc)
	notificationHandler := handlers.NewNotificationHandler(notificationSvc)
	healthHandler := handlers.NewHealthHandler(conn, ledger)
	wsHandler := handlers.NewWSHandler(hub, tokenManager)

	engine := router.SetupRouter(
		cfg,
		contractHandler,
		disputeHandler,
		notificationHandler,
		healthHandler,
		wsHandler,
		tokenManager,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.WithError(err).Error("HTTP сервер остановлен с ошибкой")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Получен сигнал завершения, останавливаем сервер")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Ошибка при остановке HTTP сервера")
		os.Exit(1)
	}

	logger.Log.Info("Сервер остановлен")
}
