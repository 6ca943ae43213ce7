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

	"github.com/RichardoC/convostore/internal/api"
	"github.com/RichardoC/convostore/internal/chat"
	"github.com/RichardoC/convostore/internal/config"
	"github.com/RichardoC/convostore/internal/db"
	"github.com/RichardoC/convostore/internal/llm"
	"github.com/RichardoC/convostore/internal/logging"
	"github.com/RichardoC/convostore/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	probePrompt     = "What would be a good company name for a company that makes colorful socks?"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "convostore",
		Short:        "Store conversations and answer new messages with a language model",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, configFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.yaml when present)")
	flags.String("addr", "", "listen address (default :8000)")
	flags.String("db-driver", "", "database driver: sqlite3 or postgres")
	flags.String("db-dsn", "", "sqlite file path or postgres connection string")
	flags.Bool("seed", false, "insert the seed conversations into an empty store")
	flags.String("llm-model", "", "model name sent to the provider")
	flags.String("llm-url", "", "provider base URL")
	flags.Duration("llm-timeout", 0, "upper bound for one generation call")
	flags.String("log-level", "", "debug, info, warn or error")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd, configFile)
			},
		},
		&cobra.Command{
			Use:   "probe [prompt]",
			Short: "Send one prompt to the configured model and print the reply",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				prompt := probePrompt
				if len(args) == 1 {
					prompt = args[0]
				}
				return probe(cmd, configFile, prompt)
			},
		},
	)
	return root
}

func serve(cmd *cobra.Command, configFile string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Production(), cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, db.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("driver", cfg.Database.Driver))
		return err
	}
	defer database.Close()

	if cfg.Database.Seed {
		seeded, err := database.Seed(ctx)
		if err != nil {
			logger.Error("failed to seed database", zap.Error(err))
			return err
		}
		logger.Info("Seed check complete", zap.Bool("inserted", seeded))
	}

	llmClient, err := llm.New(llmConfig(cfg))
	if err != nil {
		logger.Error("failed to initialize LLM client", zap.Error(err))
		return err
	}

	chatService := chat.NewService(database, llmClient, logger)
	handler := api.NewHandler(database, chatService, logger)

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: handler.Routes(api.RouterOptions{
			ServeStatic: cfg.Production(),
			StaticDir:   cfg.Server.StaticDir,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("db", cfg.Database.Driver),
			zap.String("llmProvider", cfg.LLM.Provider),
			zap.String("llmModel", cfg.LLM.Model))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}

// probe checks provider settings with a single generation call.
func probe(cmd *cobra.Command, configFile, prompt string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Production(), cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := llm.New(llmConfig(cfg))
	if err != nil {
		logger.Error("failed to initialize LLM client", zap.Error(err))
		return err
	}

	res := client.Generate(cmd.Context(), []llm.Turn{{Role: models.RoleUser, Content: prompt}})
	if res.Failed() {
		logger.Error("failed to generate completion", zap.Error(res.Err))
		return res.Err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	return nil
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	}
}
