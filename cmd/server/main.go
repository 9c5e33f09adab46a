package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/quotation-workflow/internal/config"
	"github.com/garyjia/quotation-workflow/internal/container"
	infraLark "github.com/garyjia/quotation-workflow/internal/infrastructure/external/lark"
	httpserver "github.com/garyjia/quotation-workflow/internal/interfaces/http"
	"github.com/garyjia/quotation-workflow/internal/interfaces/webhook"
	"github.com/garyjia/quotation-workflow/internal/interfaces/websocket"
	"github.com/garyjia/quotation-workflow/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real environment variables take precedence
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting quotation workflow service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.Bool("lark_enabled", cfg.Lark.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	services := c.Services()

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		c.Orchestrator(),
		services.Approvals,
		services.Revisions,
		services.DeadLetters,
		c.KVLogger(),
	)

	if cfg.Lark.Enabled {
		processor := infraLark.NewEventProcessor(cfg.Lark.ApprovalCode, services.Approvals, logger)
		switch cfg.Lark.EventMode {
		case "webhook":
			verifier := webhook.NewVerifier(cfg.Lark.VerifyToken, cfg.Lark.EncryptKey)
			server.RegisterWebhook("/webhook/lark", webhook.NewHandler(verifier, processor, logger).Handle)
			logger.Info("Lark approval callbacks enabled", zap.String("path", "/webhook/lark"))
		default:
			adapter := websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
				AppID:     cfg.Lark.AppID,
				AppSecret: cfg.Lark.AppSecret,
			}, processor, logger)
			go func() {
				if err := adapter.Start(ctx); err != nil {
					logger.Error("Lark event adapter stopped", zap.Error(err))
				}
			}()
			defer adapter.Stop()
		}
	}

	// Start blocks until the signal context is cancelled
	return server.Start(ctx)
}
