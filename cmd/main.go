package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/handlers"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"socialhub/internal/api"
	"socialhub/internal/auth"
	"socialhub/internal/config"
	"socialhub/internal/database"
	"socialhub/internal/identity"
	"socialhub/internal/logging"
	"socialhub/internal/middleware"
	"socialhub/internal/notify"
	"socialhub/internal/otp"
	"socialhub/internal/repository"
	"socialhub/internal/security"
	"socialhub/internal/storage"
	"socialhub/internal/token"
)

func main() {
	// Create a context for initialization.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if n, err := config.LoadEnv(ctx, os.Getenv("ENV_FILE_PATH")); err != nil {
		log.Printf("Warning: environment not fully loaded: %v", err)
	} else if n > 0 {
		log.Printf("Loaded %d variables from AWS Secrets Manager", n)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := database.ConnectMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal("Initialization error", zap.Error(err))
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("Error disconnecting from DB", zap.Error(err))
		}
	}()
	collections := database.GetCollections(client, cfg.MongoDB)
	if err := database.EnsureIndexes(ctx, collections); err != nil {
		logger.Fatal("Index creation failed", zap.Error(err))
	}

	var ledger token.Ledger = token.NewMongoLedger(repository.NewMongo(collections.RevokedTokens))
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, revocation cache will fall back to MongoDB", zap.Error(err))
		}
		ledger = token.NewCachedLedger(ledger, rdb, logger)
	}
	issuer := token.NewIssuer(map[token.Level]token.KeyPair{
		token.LevelBearer: {Access: []byte(cfg.AccessUserTokenSignature), Refresh: []byte(cfg.RefreshUserTokenSignature)},
		token.LevelSystem: {Access: []byte(cfg.AccessSystemTokenSignature), Refresh: []byte(cfg.RefreshSystemTokenSignature)},
	}, cfg.AccessTTL(), cfg.RefreshTTL())

	notifier, closeNotifier := newNotifier(cfg, logger)
	defer closeNotifier()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal("AWS configuration error", zap.Error(err))
	}
	files := storage.NewS3(s3.NewFromConfig(awsCfg), cfg.AWSBucketName, cfg.ApplicationName)

	var verifier identity.Verifier = identity.Disabled{}
	if len(cfg.WebClientIDs) > 0 {
		google, err := identity.NewGoogle(ctx, cfg.WebClientIDs)
		if err != nil {
			logger.Fatal("Identity provider error", zap.Error(err))
		}
		verifier = google
	}

	manager := auth.NewManager(auth.Deps{
		Accounts:         repository.NewMongo(collections.Accounts),
		Tokens:           token.NewService(issuer, ledger),
		Hasher:           security.NewBcrypt(cfg.SaltRound),
		OTP:              otp.NewEngine(cfg.ApplicationName),
		Notifier:         notifier,
		Identity:         verifier,
		Storage:          files,
		Logger:           logger,
		AppName:          cfg.ApplicationName,
		UploadCheckDelay: cfg.UploadCheckDelay(),
	})

	limiter, err := middleware.NewRateLimiter(cfg.AuthRateLimitPerMin).WithTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("Invalid TRUSTED_PROXIES", zap.Error(err))
	}
	router := api.NewRouter(api.NewHandler(manager, logger), middleware.NewGate(manager, logger), limiter)

	// Wrap the router with CORS, panic recovery and logging middleware.
	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	loggedRouter := handlers.LoggingHandler(os.Stdout, handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(cors(router)))

	// Create the HTTP server.
	srv := &http.Server{
		Handler:      loggedRouter,
		Addr:         cfg.Addr(),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the server in a goroutine.
	go func() {
		logger.Info("Server running", zap.String("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signals for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown.
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exiting gracefully.")
}

// newNotifier publishes to the AMQP queue when AMQP_URL is set, and otherwise
// delivers mail from an in-process queue.
func newNotifier(cfg *config.Config, logger *zap.Logger) (notify.Publisher, func()) {
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open a channel", zap.Error(err))
		}
		publisher, err := notify.NewAMQPPublisher(ch, cfg.NotifyQueue, logger)
		if err != nil {
			logger.Fatal("Failed to declare notification queue", zap.Error(err))
		}
		return publisher, func() {
			_ = publisher.Close()
			_ = conn.Close()
		}
	}

	mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Server:   cfg.SMTPServer,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.AppEmail,
		FromName: cfg.ApplicationName,
	})
	if err != nil {
		logger.Fatal("Mailer error", zap.Error(err))
	}
	queue := notify.NewQueue(256, notify.NewWorker(mailer, cfg.ApplicationName, logger), logger)
	queue.Start()
	return queue, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Close(ctx); err != nil {
			logger.Warn("Notification queue not drained", zap.Error(err))
		}
	}
}
