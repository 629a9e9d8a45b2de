package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/iancossa/attendance-fullstack/internal/alert"
	"github.com/iancossa/attendance-fullstack/internal/config"
	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/notify"
	"github.com/iancossa/attendance-fullstack/internal/queue"
	"github.com/iancossa/attendance-fullstack/internal/store"
)

// Worker consumes queued alerts and delivers them over the configured channels.
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}

	host, _ := os.Hostname()
	logger := logging.NewRollbar(logging.NewStd(nil, cfg.Debug), logging.RollbarOptions{
		Token:       cfg.RollbarToken,
		Environment: cfg.Env,
		Host:        host,
		Version:     cfg.Version,
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("redis setup failed", err)
		return
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, the queue will keep retrying", map[string]interface{}{"addr": cfg.RedisAddr})
	}

	var notifier notify.Notifier = notify.Log{Logger: logger}
	if cfg.NotifyBackend == "redis" {
		notifier = notify.Multi{notify.NewRedisFeed(redisClient.Client, cfg.NotifyKey, int64(cfg.NotifyFeedSize), logger), notifier}
	}

	d := alert.NewDispatcher(logger).Register(alert.NotificationSender{Notifier: notifier}, alert.Notification)
	switch cfg.EmailBackend {
	case "sendgrid":
		d.Register(alert.NewSendGrid(cfg.SendGridKey, cfg.AppName, cfg.FromEmail), alert.StudentEmail, alert.ParentEmail)
	default:
		d.Register(alert.NewConsole(cfg.AppName, logger), alert.StudentEmail, alert.ParentEmail)
	}
	if cfg.SMSGatewayURL != "" {
		d.Register(alert.NewSMSGateway(cfg.SMSGatewayURL, cfg.SMSGatewayToken, cfg.SMSSender), alert.ParentSMS)
	}

	w := &alert.Worker{
		Queue:       queue.NewRedisQueue(redisClient.Client, cfg.QueueKey),
		Sender:      d,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}
	logger.Info("worker started", map[string]interface{}{"queue": cfg.QueueKey, "workers": cfg.WorkerCount})
	if err := w.Run(ctx, cfg.WorkerCount); err != nil {
		logger.Error("worker failed", err)
		return
	}
	logger.Info("worker stopped")
}
