package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebalan/recordlock/auth"
	"github.com/ebalan/recordlock/config"
	"github.com/ebalan/recordlock/locks"
	"github.com/ebalan/recordlock/locks/schema"
	"github.com/ebalan/recordlock/server"
	"github.com/ebalan/recordlock/service"
)

var rootCmd = &cobra.Command{
	Use:   "recordlock",
	Short: "recordlock - donor record lock coordinator",
	Long: `recordlock coordinates edit access to donor records across staff
sessions through short-lived leases claimed and released over a small HTTP API.`,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the lock coordinator",
	Long:  "Start the lock coordinator with the configured lease store and API endpoints",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the recordlock configuration and display the loaded settings",
	RunE:  validateConfig,
}

var configFilePath string

func main() {
	// Add flags to server command
	serverCmd.Flags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	// Add subcommands
	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd)

	// If no command specified, default to server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "server")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// runServer starts the lock coordinator
func runServer(cmd *cobra.Command, args []string) error {
	// Create context for the entire server lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			// Log to stderr since logger may not be working
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()

	logger.Info("Starting recordlock coordinator",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("store_type", cfg.Store.Type),
		zap.Duration("lease_ttl", cfg.Lease.TTL))

	// Initialize lease store
	logger.Info("Initializing lease store")
	store, err := buildStore(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize lease store: %w", err)
	}
	defer store.Close()

	// Initialize authentication
	logger.Info("Initializing authentication")
	credentials := make([]auth.Credential, 0, len(cfg.Auth.Actors))
	for _, actor := range cfg.Auth.Actors {
		credentials = append(credentials, auth.Credential{
			Token: actor.Token,
			ID:    actor.ID,
			Role:  actor.Role,
		})
	}
	authenticator, err := auth.NewTokenAuthenticator(credentials)
	if err != nil {
		return fmt.Errorf("failed to initialize authenticator: %w", err)
	}

	// Initialize lock service
	logger.Info("Initializing lock service")
	hub := service.NewHub()
	svc := service.NewService(store, cfg.Lease.TTL, hub, logger)

	// Start background lease sweeper
	locks.StartSweeper(ctx, store, cfg.Lease.SweepInterval, logger)

	// Initialize HTTP router
	logger.Info("Initializing HTTP router")
	router := server.NewRouter(svc, hub, authenticator, &cfg.RateLimit, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			if err := srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Failed to start server", zap.Error(err))
			}
			return
		}
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// buildStore constructs the configured lease store backend
func buildStore(cfg config.StoreConfig, logger *zap.Logger) (locks.Store, error) {
	switch cfg.Type {
	case "memory":
		return locks.NewMemoryStore(), nil
	case "redis":
		return locks.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix, logger)
	case "sqlite":
		return locks.NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		logger.Info("Running database migrations")
		if err := schema.RunMigrations(cfg.DSN); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		return locks.NewPostgresStore(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// validateConfig validates the recordlock configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	fmt.Println("Validating configuration...")

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("❌ Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Println("✅ Configuration is valid")
	fmt.Printf("Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("Store Type: %s\n", cfg.Store.Type)
	switch cfg.Store.Type {
	case "redis":
		fmt.Printf("Redis Address: %s\n", cfg.Store.RedisAddr)
	case "sqlite":
		fmt.Printf("SQLite Path: %s\n", cfg.Store.SQLitePath)
	case "postgres":
		fmt.Printf("Store DSN: %s\n", maskDSN(cfg.Store.DSN))
	}
	fmt.Printf("Lease TTL: %s\n", cfg.Lease.TTL)
	fmt.Printf("Poll Interval: %s\n", cfg.Lease.PollInterval)
	fmt.Printf("Configured Actors: %d\n", len(cfg.Auth.Actors))

	return nil
}

// maskDSN masks sensitive parts of the database DSN for display
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	// Very simple masking - in practice you'd want more sophisticated logic
	if len(dsn) > 20 {
		return dsn[:10] + "***" + dsn[len(dsn)-7:]
	}
	return "***"
}

// initializeLogger creates a zap logger based on configuration
func initializeLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if logCfg.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	// Set log level
	switch logCfg.Level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
