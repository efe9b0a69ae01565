package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vocabcue/internal/api"
	"vocabcue/internal/audio"
	"vocabcue/internal/config"
	"vocabcue/internal/content"
	"vocabcue/internal/experiment"
	"vocabcue/internal/handlers"
	"vocabcue/internal/logging"
	"vocabcue/internal/security"
	"vocabcue/internal/service"
	"vocabcue/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "vocabcue",
		Short:        "Vocabulary cue experiment server",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", configPath, "path to YAML config")
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newAudioCmd(&configPath))
	cmd.AddCommand(newCodesCmd(&configPath))
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the experiment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (overrides config)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.ServerPort = portFlag
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	library := content.NewLibrary(cfg.ContentSource, &http.Client{Timeout: 15 * time.Second}, logger)

	var store session.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		store = session.NewRedisStore(rdb, cfg.SessionDuration)
		logger.Info("Using redis session store", zap.String("addr", cfg.Redis.Addr))
	} else {
		store = session.NewMemoryStore(cfg.SessionDuration)
	}

	client := api.NewClient(api.Options{
		BaseURL:      cfg.API.BaseURL,
		Timeout:      cfg.APITimeout(),
		TokenURL:     cfg.API.TokenURL,
		ClientID:     cfg.API.ClientID,
		ClientSecret: cfg.API.ClientSecret,
		Scopes:       cfg.API.Scopes,
		Logger:       logger,
	})

	tts := audio.NewTTSService(filepath.Join(cfg.StaticFilesPath, "audio"), cfg.TTSEndpoint, cfg.TTSLanguage, logger)

	experiments := service.NewExperimentService(service.ExperimentDeps{
		Groups:  experiment.NewGroupResolver(cfg.Groups),
		Content: library,
		Store:   store,
		API:     client,
		Audio:   tts,
		Timings: cfg.Stages,
		Logger:  logger,
	})

	templates, err := handlers.LoadTemplates()
	if err != nil {
		return err
	}
	logger.Info("Templates loaded successfully")

	tokens := security.NewTokenIssuer(cfg.SessionSecret, cfg.SessionDuration)
	pages := handlers.NewExperimentHandler(experiments, tokens, security.NewCSRFGenerator(cfg.SessionSecret), templates, cfg.SecureCookies, logger)
	stages := handlers.NewStageHandler(experiments, time.Second, logger)

	mux := http.NewServeMux()
	handlers.ExperimentRoutes(mux, pages, stages, handlers.NewMiddleware(tokens, logger), cfg.StaticFilesPath)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go experiments.CleanupLoop(ctx, time.Hour)

	// no WriteTimeout: stage sockets stay open for a whole phase
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handlers.Wrap(mux, logger),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return serve(ctx, server, logger)
}

// serve runs server until ctx is cancelled, then shuts it down
func serve(ctx context.Context, server *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Server shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
