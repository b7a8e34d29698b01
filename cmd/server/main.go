package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dust2cash/internal/config"
	"dust2cash/internal/db"
	"dust2cash/internal/handlers"
	"dust2cash/internal/logging"
	"dust2cash/internal/notify"
	"dust2cash/internal/services"
	"dust2cash/internal/store"
	"dust2cash/internal/sweeper"
	"dust2cash/internal/websocket"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, flush := logging.New(cfg.AppEnv)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	users := store.NewUserStore(database)
	clients := store.NewClientStore(database)
	agents := store.NewAgentStore(database)
	transactions := store.NewTransactionStore(database)
	requests := store.NewAgentRequestStore(database)
	pricing := store.NewPricingStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	dispatcher := notify.NewDispatcher(notify.ChainFromConfig(cfg.Notify), hub, cfg.Notify.QueueSize, cfg.Notify.Workers)
	directory := services.NewDirectory(agents, requests, dispatcher)
	matcher := services.NewMatcher(txRunner, transactions, requests, agents, clients, audit, dispatcher, cfg.RequestTTL).AlertAdmin(cfg.Notify.AdminEmail)
	service := services.NewTransactionService(txRunner, transactions, requests, clients, agents, pricing, audit, dispatcher)

	locker := sweeper.Locker(sweeper.NewLocalLocker())
	if cfg.RedisURL != "" {
		client, err := sweeper.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer client.Close()
		locker = sweeper.NewRedisLocker(client)
		logger.Info("expiry sweep lease backed by redis")
	}
	expiry := sweeper.New(matcher, locker, cfg.SweepInterval)

	background, cancelBackground := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() {
		dispatcher.Run(background)
		done <- struct{}{}
	}()
	go func() {
		expiry.Run(background)
		done <- struct{}{}
	}()

	handler := handlers.New(txRunner, cfg, users, clients, agents, pricing, audit, service, matcher, directory, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("dust2cash API listening", zap.String("addr", server.Addr), zap.Duration("request_ttl", cfg.RequestTTL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	cancelBackground()
	for i := 0; i < 2; i++ {
		<-done
	}
}
