package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sheikh-saqib/service-hours-ledger/internal/app"
	"github.com/sheikh-saqib/service-hours-ledger/internal/config"
	"github.com/sheikh-saqib/service-hours-ledger/internal/logger"
)

func main() {
	log := logger.NewLogger("service-hours-ledger")
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("start application", "error", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Error("close application", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           application.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown server", "error", err)
		}
	}()

	log.Info("server listening", "addr", cfg.HTTPAddr, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve", "error", err)
	}
}
