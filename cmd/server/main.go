package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aiescrow/escrow-backend/internal/adapter/ai"
	"github.com/aiescrow/escrow-backend/internal/adapter/repository/memory"
	"github.com/aiescrow/escrow-backend/internal/adapter/repository/postgres"
	"github.com/aiescrow/escrow-backend/internal/adapter/rest"
	"github.com/aiescrow/escrow-backend/internal/config"
	"github.com/aiescrow/escrow-backend/internal/domain"
	"github.com/aiescrow/escrow-backend/internal/usecase/goalfactory"
	"github.com/aiescrow/escrow-backend/internal/usecase/release"
	"github.com/aiescrow/escrow-backend/internal/usecase/verifier"
	"github.com/aiescrow/escrow-backend/internal/usecase/wallet"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()

	// 1. Ledger store
	var store domain.LedgerStore
	switch cfg.DBDriver {
	case "memory":
		slog.Warn("using in-memory ledger store; state is lost on restart")
		store = memory.NewStore()
	case "postgres":
		db, err := postgres.NewDB(cfg.DBConnStr)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.RunMigrations(); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		store = postgres.NewStore(db)
	default:
		slog.Error("unknown DB_DRIVER", "driver", cfg.DBDriver)
		os.Exit(1)
	}

	// 2. AI capability client
	aiClient := ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AITimeout)

	// 3. Services
	walletService := wallet.NewService(store, cfg.StartingBalance)
	goalService := goalfactory.NewService(store, aiClient)
	releaseEngine := release.NewEngine(store)
	verifierService := verifier.NewService(store, aiClient, releaseEngine, cfg.ConfidenceThreshold)

	// 4. HTTP server
	restServer := rest.NewServer(goalService, verifierService, walletService, cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           restServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(srv)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(srv *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	slog.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	slog.Info("http server stopped")
}
