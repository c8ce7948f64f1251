package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/castellan-api/castellan/internal/audit"
	"github.com/castellan-api/castellan/internal/authz"
	"github.com/castellan-api/castellan/internal/config"
	"github.com/castellan-api/castellan/internal/credential"
	"github.com/castellan-api/castellan/internal/gateway"
	"github.com/castellan-api/castellan/internal/identity"
	"github.com/castellan-api/castellan/internal/oauth"
	"github.com/castellan-api/castellan/internal/ratelimit"
	"github.com/castellan-api/castellan/internal/store"
	"github.com/castellan-api/castellan/internal/telemetry"
	"github.com/castellan-api/castellan/internal/token"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (gateway will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (key cache disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Build the access-control core
	codec, err := credential.NewCodec([]byte(cfg.Auth.HashSecret))
	if err != nil {
		logger.Error("failed to build credential codec", "error", err)
		os.Exit(1)
	}

	tokens, err := token.NewService(token.Config{
		SigningSecret: cfg.Auth.SigningSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		OAuthTTL:      cfg.Auth.OAuthTokenTTL,
	})
	if err != nil {
		logger.Error("failed to build token service", "error", err)
		os.Exit(1)
	}

	metrics := telemetry.NewMetrics()
	emitter := audit.NewLogEmitter(logger)

	st := store.NewStore(dbPool, rdb, codec, logger)
	resolver := identity.NewResolver(tokens, codec, st, st, st, logger)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
	loader.OnReload(func() {
		rl := loader.Config().RateLimit
		limiter.SetDefaults(rl.PerMinute, rl.PerHour)
		logger.Info("rate limit defaults reloaded", "per_minute", rl.PerMinute, "per_hour", rl.PerHour)
	})

	oauthHandler := oauth.NewHandler(st, st, tokens, codec, limiter, metrics, emitter, logger)
	coreHandler := gateway.NewHandler(resolver, limiter, logger)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/castellan/v1/health", healthHandler)
	r.Post("/oauth/token", oauthHandler.Token)
	r.Post("/oauth/introspect", oauthHandler.Introspect)
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, metrics))
		r.Post("/auth/refresh", coreHandler.Refresh)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(resolver, metrics))
		r.Use(ratelimit.Middleware(limiter, metrics))

		r.Get("/v1/me", coreHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(authz.RequireRoleMiddleware(emitter, identity.RolePlatformAdmin))
			r.Get("/v1/ratelimit/{key}/stats", coreHandler.RateLimitStats)
			r.Post("/v1/ratelimit/{key}/reset", coreHandler.RateLimitReset)
			r.Put("/v1/ratelimit/{key}/limit", coreHandler.RateLimitSet)
		})
	})

	// Metrics on a separate listener, never on the public port.
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics server starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
