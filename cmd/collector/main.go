package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vocabcue/internal/config"
	"vocabcue/internal/database"
	"vocabcue/internal/handlers"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
	"vocabcue/internal/security"
	"vocabcue/internal/service"
	"vocabcue/internal/validation"
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
		Use:          "collector",
		Short:        "Response API for the vocabulary cue experiment",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", configPath, "path to YAML config")
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	cmd.AddCommand(newExportCmd(&configPath))
	cmd.AddCommand(newResendCmd(&configPath))
	cmd.AddCommand(newHashPasswordCmd())
	return cmd
}

// openDB loads config, connects and migrates
func openDB(ctx context.Context, configPath string) (*config.Config, *database.DB, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database connection established", zap.String("type", cfg.DatabaseType))

	if err := db.RunMigrations(ctx, logger); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return cfg, db, logger, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	var (
		port      string
		rateLimit int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the response API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, db, logger, err := openDB(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()
			defer logger.Sync()
			if port == "" {
				port = cfg.CollectorPort
			}
			if cfg.AdminPasswordHash == "" {
				logger.Warn("ADMIN_PASSWORD_HASH not set, admin endpoints are locked")
			}

			email, err := service.NewEmailService(ctx, cfg.Email.Region, cfg.Email.FromEmail, cfg.Email.FromName, logger)
			if err != nil {
				return err
			}
			collector := service.NewCollectorService(db, email, logger)
			exports := service.NewExportService(db, logger)

			limiter := security.NewRateLimiter(rateLimit, time.Minute)
			go limiter.Run(ctx, 5*time.Minute)

			mux := http.NewServeMux()
			handlers.CollectorRoutes(mux, handlers.NewCollectorHandler(collector, exports, logger), limiter, cfg.AdminUser, cfg.AdminPasswordHash)

			server := &http.Server{
				Addr:         ":" + port,
				Handler:      handlers.Wrap(mux, logger),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Collector starting", zap.String("addr", server.Addr))
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
				logger.Info("Collector shutting down...")
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (overrides config)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 600, "POST requests per minute per client IP")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, logger, err := openDB(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("Migrations completed successfully")
			return nil
		},
	}
}

func newExportCmd(configPath *string) *cobra.Command {
	var (
		format string
		table  string
		output string
		filter models.ResponseFilter
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export consents and responses as JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, _, err := openDB(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()
			exports := service.NewExportService(db, nil)

			if format == "json" && output != "" && filter == (models.ResponseFilter{}) {
				if err := exports.ExportToFile(ctx, output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Export written to %s\n", output)
				return nil
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			switch {
			case format == "json":
				err = exports.WriteJSON(ctx, w, filter)
			case format == "csv" && table == "responses":
				err = exports.WriteResponsesCSV(ctx, w, filter)
			case format == "csv" && table == "consents":
				err = exports.WriteConsentsCSV(ctx, w)
			default:
				return fmt.Errorf("unsupported export: format %q table %q", format, table)
			}
			if err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Export written to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or csv")
	cmd.Flags().StringVar(&table, "table", "responses", "responses or consents (csv only)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&filter.UserID, "user", "", "only this participant")
	cmd.Flags().StringVar(&filter.Group, "group", "", "only this group")
	cmd.Flags().StringVar(&filter.PageType, "page-type", "", "only this page type")
	return cmd
}

func newResendCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resend-receipts",
		Short: "Retry consent receipts that failed to send",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, db, logger, err := openDB(ctx, *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			email, err := service.NewEmailService(ctx, cfg.Email.Region, cfg.Email.FromEmail, cfg.Email.FromName, logger)
			if err != nil {
				return err
			}
			if !email.IsEnabled() {
				return errors.New("email is not configured; set SES_FROM_EMAIL")
			}
			sent, err := service.NewCollectorService(db, email, logger).ResendReceipts(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d receipts\n", sent)
			return err
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read an admin password from stdin and print its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			password := strings.TrimRight(line, "\r\n")
			if err := validation.ValidatePassword(password); err != nil {
				return err
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
