package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/config"
	"github.com/mindease/backend/internal/conversation"
	"github.com/mindease/backend/internal/handler"
	"github.com/mindease/backend/internal/middleware"
	"github.com/mindease/backend/internal/service/reply"
	"github.com/mindease/backend/internal/service/speech"
	"github.com/mindease/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize logger")
	}

	store := conversation.NewService()
	broker := conversation.NewBroker()
	metrics := middleware.NewMetrics()

	replyClient := reply.WithMetrics(reply.NewClient(cfg.Reply, log), metrics)
	controller := conversation.NewController(store, replyClient, broker, cfg.Controller, log)

	speechSvc := speech.NewService(cfg.Speech, log)
	if speechSvc.Enabled() {
		log.WithField("locale", speechSvc.Locale()).Info("speech facility enabled")
	} else {
		log.Info("speech provider not configured, voice capture disabled")
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit, log)
	}

	router := handler.NewRouter(handler.Deps{
		Store:       store,
		Controller:  controller,
		Broker:      broker,
		SpeechSvc:   speechSvc,
		Metrics:     metrics,
		RateLimiter: rateLimiter,
		Log:         log,
	})

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logrus.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", serverCfg.Addr).Info("mindease backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
