package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iancossa/attendance-fullstack/internal/alert"
	"github.com/iancossa/attendance-fullstack/internal/api"
	"github.com/iancossa/attendance-fullstack/internal/attendance"
	"github.com/iancossa/attendance-fullstack/internal/auth"
	"github.com/iancossa/attendance-fullstack/internal/catalog"
	"github.com/iancossa/attendance-fullstack/internal/cloudinary"
	"github.com/iancossa/attendance-fullstack/internal/config"
	"github.com/iancossa/attendance-fullstack/internal/httpmiddleware"
	"github.com/iancossa/attendance-fullstack/internal/justification"
	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/notify"
	"github.com/iancossa/attendance-fullstack/internal/queue"
	"github.com/iancossa/attendance-fullstack/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	host, _ := os.Hostname()
	logger := logging.NewRollbar(logging.NewStd(nil, cfg.Debug), logging.RollbarOptions{
		Token:       cfg.RollbarToken,
		Environment: cfg.Env,
		Host:        host,
		Version:     cfg.Version,
	})
	defer logger.Close()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", err)
		logger.Close()
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpen: cfg.DBMaxOpenConns})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	redisClient, err := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var feed api.Feed
	var notifier notify.Notifier
	if cfg.NotifyBackend == "memory" {
		mem := notify.NewMemory(cfg.NotifyFeedSize)
		feed, notifier = mem, mem
	} else {
		rf := notify.NewRedisFeed(redisClient.Client, cfg.NotifyKey, int64(cfg.NotifyFeedSize), logger)
		feed, notifier = rf, rf
	}
	notifier = notify.Multi{notifier, notify.Log{Logger: logger}}

	dispatcher := newDispatcher(cfg, notifier, logger)
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// no separate worker can see this queue, so drain it here
		mem := queue.NewInMemory(64)
		q = mem
		w := &alert.Worker{Queue: mem, Sender: dispatcher, MaxAttempts: cfg.MaxAttempts, Backoff: cfg.RetryBackoff, Logger: logger}
		go func() {
			if err := w.Run(ctx, cfg.WorkerCount); err != nil {
				logger.Error("in-process alert worker stopped", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	cdn := cloudinary.New(cfg.CloudinaryName, cfg.CloudinaryKey, cfg.CloudinarySec, cfg.CloudinaryDir)
	if cdn.Configured() {
		logger.Info("cloudinary configured", map[string]interface{}{"cloud": cfg.CloudinaryName})
	} else {
		logger.Warn("cloudinary not configured, documents are stored by metadata only")
	}
	svc := attendance.NewService(db, cdn, logger)

	forms := justification.NewRegistry(svc, notifier, logger, cfg.FormTTL)
	go forms.Run(ctx, cfg.FormSweepEvery)

	tmpls, err := alert.LoadTemplates(cfg.AlertTemplates)
	if err != nil {
		return err
	}
	composer, err := alert.NewComposer(tmpls)
	if err != nil {
		return err
	}

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Prune(10 * time.Minute)
			}
		}
	}()

	r := api.NewRouter(api.Deps{
		Attendance:     svc,
		Forms:          forms,
		Composer:       composer,
		Alerts:         dispatcher,
		Queue:          q,
		Catalog:        catalog.NewRepository(db.Client),
		Feed:           feed,
		Issuer:         auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Logger:         logger,
		DevTokens:      !cfg.Production(),
		CORSOrigins:    cfg.CORSOrigins,
		RateLimiter:    limiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Health: func(ctx context.Context) map[string]bool {
			return map[string]bool{"db": db.Healthy(ctx), "redis": redisClient.Healthy(ctx)}
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", map[string]interface{}{"port": cfg.HTTPPort, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", err)
	}
	logger.Info("server exited")
	return nil
}

// newDispatcher registers a sender for every channel that is configured.
func newDispatcher(cfg config.App, notifier notify.Notifier, logger logging.Logger) *alert.Dispatcher {
	d := alert.NewDispatcher(logger).Register(alert.NotificationSender{Notifier: notifier}, alert.Notification)
	switch cfg.EmailBackend {
	case "sendgrid":
		d.Register(alert.NewSendGrid(cfg.SendGridKey, cfg.AppName, cfg.FromEmail), alert.StudentEmail, alert.ParentEmail)
	default:
		d.Register(alert.NewConsole(cfg.AppName, logger), alert.StudentEmail, alert.ParentEmail)
	}
	if cfg.SMSGatewayURL != "" {
		d.Register(alert.NewSMSGateway(cfg.SMSGatewayURL, cfg.SMSGatewayToken, cfg.SMSSender), alert.ParentSMS)
	} else {
		logger.Warn("SMS gateway not configured, parent SMS alerts are disabled")
	}
	return d
}
