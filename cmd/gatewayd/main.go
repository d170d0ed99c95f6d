package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/trustgate/gateway/internal/api"
	"github.com/trustgate/gateway/internal/approvals"
	"github.com/trustgate/gateway/internal/config"
	"github.com/trustgate/gateway/internal/credentials"
	"github.com/trustgate/gateway/internal/middleware"
	"github.com/trustgate/gateway/internal/monitoring"
	"github.com/trustgate/gateway/internal/policy"
	"github.com/trustgate/gateway/internal/proxy"
	"github.com/trustgate/gateway/internal/session"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("GATEWAY_CONFIG"), "path to gateway.yaml")
	flag.Parse()

	setupLogging()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "path", *configPath, "error", err)
		os.Exit(1)
	}

	sessions := session.NewManager(cfg.Files.Enrollments, cfg.Session.TTL())

	var backends []credentials.Backend
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		backends = append(backends, credentials.NewRedisBackend(goredisClient{rdb}, cfg.Redis.KeyPrefix))
		slog.Info("redis credential backend enabled", "addr", cfg.Redis.Addr)
	}
	backends = append(backends,
		credentials.NewOnePasswordBackend(),
		credentials.NewVaultBackend(),
		credentials.NewAWSSecretsBackend(),
	)
	broker := credentials.NewBroker(cfg.Files.Credentials, backends...)

	policies := policy.NewEngine(cfg.Files.Policies)

	notifiers := []approvals.Notifier{approvals.SlogNotifier{}}
	if len(cfg.Notifier.WebhookURLs) > 0 {
		notifiers = append(notifiers, approvals.NewWebhookNotifier(cfg.Notifier.WebhookURLs, 2))
	}
	orchestrator := approvals.NewOrchestrator(cfg.Approvals.TTL(), notifiers...)

	forwarder := proxy.NewForwarder(cfg.Forward.Timeout(), cfg.Forward.DefaultBaseURL, cfg.Forward.BaseURLs)
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		MaxCallsPerMinute: cfg.RateLimit.MaxCallsPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
	})

	stop := make(chan struct{})
	sessions.StartSweeper(cfg.Session.SweepInterval(), stop)
	orchestrator.StartSweeper(cfg.Approvals.SweepInterval(), stop)

	server := api.NewServer(sessions, broker, policies, orchestrator, forwarder, metrics, limiter, cfg.Session.TTL())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		slog.Info("gateway listening", "addr", httpServer.Addr, "env", cfg.Server.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	close(stop)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown incomplete", "error", err)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if strings.EqualFold(os.Getenv("DEBUG"), "true") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// goredisClient adapts the go-redis client to the broker's minimal
// RedisClient interface.
type goredisClient struct {
	rdb *redis.Client
}

func (c goredisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}
