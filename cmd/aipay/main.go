package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DaGlaswen/ai-pay/internal/agent"
	"github.com/DaGlaswen/ai-pay/internal/api"
	"github.com/DaGlaswen/ai-pay/internal/browser"
	"github.com/DaGlaswen/ai-pay/internal/checkout"
	"github.com/DaGlaswen/ai-pay/internal/config"
	"github.com/DaGlaswen/ai-pay/internal/llm"
	"github.com/DaGlaswen/ai-pay/internal/order"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aipay",
	Short: "ai-pay - LLM-driven checkout automation service",
	Long: `ai-pay automates online purchases: given a product link it builds the
cart, collects full order details, and on a second call validates the order
and pays for it. A browsing agent driven by an LLM does the actual clicking.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real deployments set the environment directly.
		_ = godotenv.Load()

		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.DefaultConfig().Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	session := browser.NewSession(browser.Config{
		Headless:            cfg.Browser.Headless,
		Bin:                 cfg.Browser.Bin,
		ViewportWidth:       cfg.Browser.ViewportWidth,
		ViewportHeight:      cfg.Browser.ViewportHeight,
		NavigationTimeoutMs: cfg.Browser.NavigationTimeoutMs,
	}, logger)

	runner := agent.NewRunner(session, client, sensitiveData(cfg), cfg.Browser.MaxAgentSteps, logger)

	ledger, closeLedger, err := buildLedger(cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	svc := checkout.NewService(runner, logger)
	server := api.NewServer(cfg, svc, ledger, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: server.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("service listening",
			zap.String("addr", cfg.Server.Addr()),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("ledger", cfg.Ledger.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
		if err := runner.Stop(); err != nil {
			logger.Warn("browser shutdown failed", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// sensitiveData builds the placeholder map handed to the agent runner. The
// LLM only ever sees the keys; values are substituted at typing time.
func sensitiveData(cfg *config.Config) map[string]string {
	return map[string]string{
		"card_number":          cfg.Card.Number,
		"card_expiration_date": cfg.Card.Expiry,
		"card_cvv":             cfg.Card.CVV,
		"cardholder_name":      cfg.Card.Cardholder,
		"phone_number":         cfg.Contact.Phone,
		"email":                cfg.Contact.Email,
		"full_name":            cfg.Contact.FullName,
	}
}

func buildLedger(cfg *config.Config) (order.Ledger, func(), error) {
	switch cfg.Ledger.Backend {
	case "sqlite":
		ledger, err := order.NewSQLiteLedger(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open order ledger: %w", err)
		}
		return ledger, func() { _ = ledger.Close() }, nil
	default:
		return order.NewMemoryLedger(), func() {}, nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
