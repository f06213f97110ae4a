package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"

	"github.com/Dosada05/esports-arena/brackets"
	"github.com/Dosada05/esports-arena/config"
	"github.com/Dosada05/esports-arena/db"
	"github.com/Dosada05/esports-arena/handlers"
	"github.com/Dosada05/esports-arena/middleware"
	"github.com/Dosada05/esports-arena/repositories"
	"github.com/Dosada05/esports-arena/routes"
	"github.com/Dosada05/esports-arena/services"
	"github.com/Dosada05/esports-arena/storage"
	"github.com/Dosada05/esports-arena/wallet"
)

const (
	sweepInterval = 30 * time.Second
	walletTimeout = 10 * time.Second
	migrationsDir = "migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(dbConn, migrationsDir); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied")

	var uploader storage.FileUploader
	if cfg.R2Configured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 storage not configured, uploads disabled")
	}

	var walletClient wallet.Wallet
	if cfg.WalletBaseURL != "" {
		walletClient = wallet.NewHTTPClient(cfg.WalletBaseURL, walletTimeout)
		logger.Info("wallet client initialized", slog.String("base_url", cfg.WalletBaseURL))
	} else {
		walletClient = wallet.NewMemoryWallet()
		logger.Warn("WALLET_BASE_URL not set, using in-memory wallet (development only)")
	}

	wsHub := brackets.NewHub()
	go wsHub.Run()

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	txRunner := repositories.NewTxRunner(dbConn)

	clock := clockwork.NewRealClock()

	registrationService := services.NewRegistrationService(
		tournamentRepo, participantRepo, txRunner, walletClient, wsHub, clock, logger)
	lifecycleService := services.NewLifecycleService(
		tournamentRepo, participantRepo, matchRepo, txRunner, walletClient, wsHub, clock, logger)
	bracketService := services.NewBracketService(
		tournamentRepo, participantRepo, matchRepo, txRunner, wsHub, clock, logger)
	matchService := services.NewMatchService(
		tournamentRepo, participantRepo, matchRepo, txRunner, wsHub, clock, logger)
	payoutService := services.NewPayoutService(
		tournamentRepo, participantRepo, txRunner, wsHub, clock, logger)
	tournamentService := services.NewTournamentService(
		tournamentRepo, participantRepo, uploader, clock, logger)
	logger.Info("services initialized")

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		logger.Info("deadline sweep started", slog.Duration("interval", sweepInterval))

		lifecycleService.SweepDeadlines(context.Background())
		for range ticker.C {
			lifecycleService.SweepDeadlines(context.Background())
		}
	}()

	auth := middleware.NewAuthenticator(cfg.JWTSecretKey)
	router := routes.InitRoutes(
		auth,
		handlers.NewTournamentHandler(tournamentService, lifecycleService, bracketService, payoutService),
		handlers.NewRegistrationHandler(registrationService, lifecycleService, payoutService, tournamentService),
		handlers.NewMatchHandler(matchService),
		handlers.NewWebsocketHandler(wsHub),
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
}
