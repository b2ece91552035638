package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/kakao-relay/internal/config"
	"github.com/zhouzirui/kakao-relay/internal/handler"
	"github.com/zhouzirui/kakao-relay/internal/handler/health"
	"github.com/zhouzirui/kakao-relay/internal/handler/webhook"
	"github.com/zhouzirui/kakao-relay/internal/logging"
	"github.com/zhouzirui/kakao-relay/internal/service/callback"
	"github.com/zhouzirui/kakao-relay/internal/service/queue"
	"github.com/zhouzirui/kakao-relay/internal/service/responder"
	"github.com/zhouzirui/kakao-relay/internal/service/upstream"
)

const serviceName = "kakao-relay"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	messages, err := responder.LoadMessages(cfg.Platform.MessagesFile)
	if err != nil {
		logger.Fatal("failed to load message catalogue", zap.Error(err))
	}

	// 上游与回调共用一个连接池；超时由 context 控制
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 3 * time.Second,
		},
	}

	// A missing key is not fatal: the webhook keeps answering with the
	// configuration-error envelope so the platform never sees a dead endpoint.
	answerer, configErr := upstream.New(ctx, cfg.Upstream, httpClient)
	if configErr != nil {
		if !errors.Is(configErr, upstream.ErrMissingAPIKey) {
			logger.Fatal("failed to initialize upstream", zap.String("provider", cfg.Upstream.Provider), zap.Error(configErr))
		}
		logger.Error("upstream credentials missing, every request will receive the configuration error",
			zap.String("provider", cfg.Upstream.Provider),
			zap.Error(configErr))
	} else {
		logger.Info("upstream initialized",
			zap.String("provider", answerer.Name()),
			zap.Duration("timeout", cfg.Upstream.Timeout),
			zap.Duration("platform_deadline", cfg.Platform.Deadline))
	}

	var (
		jobs    queue.Queue
		workers sync.WaitGroup
	)
	if cfg.Platform.Mode == config.ModeAsync {
		jobs, err = queue.New(cfg.Queue, serviceName, logger)
		if err != nil {
			logger.Fatal("failed to initialize job queue", zap.String("backend", cfg.Queue.Backend), zap.Error(err))
		}
		defer func() {
			if err := jobs.Close(); err != nil {
				logger.Warn("failed to close job queue", zap.Error(err))
			}
		}()

		if answerer != nil {
			worker := responder.NewWorker(
				answerer,
				callback.NewHTTPPusher(httpClient, cfg.Queue.CallbackTimeout),
				cfg.Upstream.AsyncTimeout,
				cfg.Platform.MaxAnswerLength,
				logger,
			)
			workers.Add(1)
			go func() {
				defer workers.Done()
				if err := worker.Run(ctx, jobs); err != nil {
					logger.Error("worker pool stopped", zap.Error(err))
				}
			}()
		}
		logger.Info("async mode enabled",
			zap.String("backend", cfg.Queue.Backend),
			zap.Int("workers", cfg.Queue.Workers))
	}

	resp := responder.New(answerer, configErr, jobs, responder.Options{
		Mode:            cfg.Platform.Mode,
		Provider:        cfg.Upstream.Provider,
		Timeout:         cfg.Upstream.Timeout,
		MaxAnswerLength: cfg.Platform.MaxAnswerLength,
		Messages:        messages,
	}, logger)

	info := health.Info{
		Service:  serviceName,
		Mode:     cfg.Platform.Mode,
		Upstream: cfg.Upstream.Provider,
	}
	if jobs != nil {
		info.Queue = cfg.Queue.Backend
	}

	router := handler.NewRouter(
		webhook.New(resp, messages.Generic, logger),
		health.New(info, logger),
		cfg.Server.AllowedOrigin,
		logger,
	)

	startServer(ctx, cfg.Server, router, logger)

	stop()
	workers.Wait()
	logger.Info("kakao relay stopped")
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("kakao relay listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
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
