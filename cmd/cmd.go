package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"messenger-sync/internal/config"
	"messenger-sync/internal/handlers"
	"messenger-sync/internal/repository"
	"messenger-sync/internal/services"
	"messenger-sync/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "messenger-sync",
	Short:         "Conversation and message synchronization service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)

	tokenCmd.Flags().String("email", "", "Email address of the user")
	tokenCmd.Flags().String("name", "", "Display name of the user")
	_ = tokenCmd.MarkFlagRequired("email")
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Log.Level)
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := repository.Migrate(cmd.Context(), cfg.Database.DSN()); err != nil {
			return err
		}
		log.Info().Msg("Migrations applied")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for development",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")

		token, err := services.NewAuthService(cfg.JWT.Secret).IssueToken(email, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	blobStore, err := openBlobStore(ctx, cfg.Blob)
	if err != nil {
		return err
	}

	// Initialize services
	notifier, err := services.NewNotifier(store, cfg.APNs.Certificate, cfg.APNs.Password, cfg.APNs.Topic, cfg.APNs.Production)
	if err != nil {
		return err
	}
	auth := services.NewAuthService(cfg.JWT.Secret)
	directory := services.NewDirectoryService(store)
	conversations := services.NewConversationService(store, notifier)
	blobs := services.NewBlobService(blobStore)
	wsHub := services.NewWSHub(conversations)

	// Initialize handlers
	router := handlers.NewRouter(
		auth,
		handlers.NewUserHandler(directory, notifier, blobs),
		handlers.NewConversationHandler(conversations),
		handlers.NewWebSocketHandler(wsHub, auth),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("store", cfg.Store.Driver).
			Str("blob", cfg.Blob.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

// openStore creates the configured document store. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (services.DocumentStore, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		log.Warn().Msg("Using in-memory document store, data is lost on exit")
		repo := repository.NewMemoryRepository()
		return repo, repo.Close, nil
	}

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	repo := repository.NewDocumentRepository(db)
	go func() {
		if err := repo.Listen(ctx); err != nil {
			log.Error().Err(err).Msg("Document change listener stopped")
		}
	}()

	return repo, func() {
		repo.Close()
		db.Close()
	}, nil
}

func openBlobStore(ctx context.Context, cfg config.BlobConfig) (services.BlobStore, error) {
	switch cfg.Driver {
	case config.BlobS3:
		return storage.NewS3Store(ctx, storage.S3Options{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Endpoint:  cfg.Endpoint,
			URLExpiry: cfg.URLExpiry,
		})
	default:
		return storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
			URLExpiry: cfg.URLExpiry,
		})
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
