package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adamscao/ealicense/internal/api"
	"github.com/adamscao/ealicense/internal/bot"
	"github.com/adamscao/ealicense/internal/config"
	"github.com/adamscao/ealicense/internal/db"
	"github.com/adamscao/ealicense/internal/db/repository"
	"github.com/adamscao/ealicense/internal/license"
	"github.com/adamscao/ealicense/internal/logger"
	"github.com/adamscao/ealicense/internal/metrics"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (environment only when empty)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("EA License Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	base := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer base.Sync()
	log := logger.WithComponent(base, "main")

	log.Info("starting EA license server",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("telegram_mode", cfg.Telegram.Mode),
	)
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	if err := run(cfg, base, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}

	log.Info("server stopped")
}

func run(cfg *config.Config, base, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	log.Info("opening database", zap.String("path", cfg.Database.Path))
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	repo := repository.NewLicenseRepository(database.DB)
	reg := metrics.NewRegistry()

	service := license.NewService(repo, cfg.Telegram.AdminUserID, license.WithLogger(base))
	verifier := license.NewVerifier(repo, license.WithLogger(base))

	var transport *bot.TelegramTransport
	if cfg.Telegram.Mode != config.TelegramModeDisabled {
		transport, err = newTransport(cfg, base, service, reg)
		if err != nil {
			return err
		}
	}

	deps := api.Dependencies{
		Verifier: verifier,
		Licenses: service,
		Metrics:  reg,
		Logger:   base,
	}
	if cfg.Telegram.Mode == config.TelegramModeWebhook {
		deps.Webhook = transport
	}

	httpServer := api.NewServer(cfg, deps).HTTPServer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if transport != nil {
		g.Go(func() error {
			if err := transport.Run(gctx); err != nil {
				return fmt.Errorf("telegram transport: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func newTransport(cfg *config.Config, base *zap.Logger, service *license.Service, reg *metrics.Registry) (*bot.TelegramTransport, error) {
	if err := tgbotapi.SetLogger(zap.NewStdLog(logger.WithComponent(base, "tgbotapi"))); err != nil {
		return nil, fmt.Errorf("failed to set telegram logger: %w", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	base.Info("authorized on telegram", zap.String("bot", botAPI.Self.UserName))

	router := bot.NewRouter(service, base, reg)

	var webhookURL string
	if cfg.Telegram.Mode == config.TelegramModeWebhook {
		webhookURL = cfg.WebhookEndpoint()
	}

	return bot.NewTelegramTransport(botAPI, router, base, cfg.GetPollTimeout(), webhookURL), nil
}
