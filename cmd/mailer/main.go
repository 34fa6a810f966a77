// Command mailer consumes notification events from RabbitMQ and delivers them over SMTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"socialhub/internal/config"
	"socialhub/internal/logging"
	"socialhub/internal/notify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := config.LoadEnv(ctx, os.Getenv("ENV_FILE_PATH")); err != nil {
		log.Printf("Warning: environment not fully loaded: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required")
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

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

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open a channel", zap.Error(err))
	}
	defer ch.Close()
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", zap.Error(err))
	}

	worker := notify.NewWorker(mailer, cfg.ApplicationName, logger)
	logger.Info("Waiting for notifications", zap.String("queue", cfg.NotifyQueue))
	if err := notify.Consume(ctx, ch, cfg.NotifyQueue, worker, logger); err != nil {
		logger.Fatal("Consumer stopped", zap.Error(err))
	}
	logger.Info("Mailer exiting gracefully.")
}
