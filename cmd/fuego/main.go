package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fuego-app/fuego/internal/config"
	dbPostgres "github.com/fuego-app/fuego/internal/db/postgres"
	dbRedis "github.com/fuego-app/fuego/internal/db/redis"
	"github.com/fuego-app/fuego/internal/domain"
	"github.com/fuego-app/fuego/internal/identity"
	logpkg "github.com/fuego-app/fuego/internal/logger"
	"github.com/fuego-app/fuego/internal/metrics"
	"github.com/fuego-app/fuego/internal/relay"
	"github.com/fuego-app/fuego/internal/repository/embcache"
	matchrepo "github.com/fuego-app/fuego/internal/repository/match"
	profilerepo "github.com/fuego-app/fuego/internal/repository/profile"
	anthropicTransport "github.com/fuego-app/fuego/internal/transport/anthropic"
	chiTransport "github.com/fuego-app/fuego/internal/transport/chi"
	openaiTransport "github.com/fuego-app/fuego/internal/transport/openai"
	"github.com/fuego-app/fuego/internal/transport/supabase"
	"github.com/fuego-app/fuego/internal/transport/upstream"
	"github.com/fuego-app/fuego/internal/usecase/consent"
	embeddinguc "github.com/fuego-app/fuego/internal/usecase/embedding"
	explainuc "github.com/fuego-app/fuego/internal/usecase/explain"
	healthuc "github.com/fuego-app/fuego/internal/usecase/health"
	matchuc "github.com/fuego-app/fuego/internal/usecase/match"
	profileuc "github.com/fuego-app/fuego/internal/usecase/profile"
	"github.com/fuego-app/fuego/internal/version"
)

func main() {
	// A missing .env is fine: production injects the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting fuego API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("chat_provider", cfg.Chat.Provider),
		zap.Bool("cache", cfg.Cache.Enabled()),
		zap.Bool("supabase", cfg.Supabase.Enabled()),
	)

	store, err := dbPostgres.NewStore(dbPostgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, readiness); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.Register()

	var healthOpts []healthuc.Option

	var cache *dbRedis.Store
	if cfg.Cache.Enabled() {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cache.Close()
		if err := cache.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		healthOpts = append(healthOpts, healthuc.WithCache(cache))
		logger.Info("Connected to embedding cache")
	}

	// Pass a nil interface (not a typed nil pointer) when embeddings are not configured.
	var embedder domain.Embedder
	if cfg.Embedding.APIKey != "" {
		emb := buildEmbedder(cfg.Embedding, cfg.Cache, cache, logger)
		embedder = emb
		healthOpts = append(healthOpts, healthuc.WithEmbedding(emb))
		logger.Info("Embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	} else {
		logger.Warn("embedding.api_key is empty; /api/save-profile will answer 501")
	}

	// Repositories
	publicRepo, err := matchrepo.New(store.DB(), cfg.Matching.CursorFunction)
	if err != nil {
		logger.Fatal("Invalid matching.cursor_function", zap.Error(err))
	}
	publicRepo, err = publicRepo.WithOffsetFunction(cfg.Matching.OffsetFunction)
	if err != nil {
		logger.Fatal("Invalid matching.offset_function", zap.Error(err))
	}
	secureRepo, err := matchrepo.New(store.DB(), cfg.Matching.SecureFunction)
	if err != nil {
		logger.Fatal("Invalid matching.secure_function", zap.Error(err))
	}
	profiles := profilerepo.New(store.DB())

	// Use cases
	matchOpts := matchuc.Options{
		MaxLimit:      cfg.Matching.MaxLimit,
		ProbeNextPage: cfg.Matching.ProbeNextPage,
	}
	guard := consent.New(profiles, *cfg.Matching.RequireConsent)

	services := chiTransport.Services{
		Profiles: profileuc.New(profiles, embedder),
		Matches:  matchuc.New(publicRepo, matchOpts).WithOffsets(publicRepo),
		Secure:   matchuc.NewGuarded(guard, matchuc.New(secureRepo, matchOpts)),
		Explain:  buildExplainer(cfg, logger),
		Health:   healthuc.New(store, healthOpts...),
	}
	if cfg.Supabase.Enabled() {
		rpc := supabase.NewMatchRPC(supabase.Config{
			URL:            cfg.Supabase.URL,
			AnonKey:        cfg.Supabase.AnonKey,
			CursorFunction: cfg.Supabase.CursorFunction,
		}, newUpstreamClient("supabase", cfg.Upstream, logger))
		services.RLS = matchuc.New(rpc, matchOpts)
	}

	opts := chiTransport.Options{DefaultLimit: cfg.Matching.DefaultLimit}
	if cfg.Chat.RequestsPerSecond > 0 {
		opts.ChatLimiter = rate.NewLimiter(rate.Limit(cfg.Chat.RequestsPerSecond), cfg.Chat.Burst)
	}

	// Same nil-interface rule as the embedder.
	var resolver chiTransport.TokenResolver
	if cfg.Auth.JWTSecret != "" {
		resolver = identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	} else {
		logger.Warn("auth.jwt_secret is empty; authenticated routes will answer 401")
	}

	server := chiTransport.NewServer(services, opts, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Use(chiTransport.IdentityMiddleware(resolver))
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the chain: instrumented -> prefix -> cache -> OpenAI.
func buildEmbedder(
	embCfg config.EmbeddingConfig,
	cacheCfg config.CacheConfig,
	cache *dbRedis.Store,
	logger *zap.Logger,
) *embeddinguc.InstrumentedEmbedder {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if cache != nil {
		embedder = embcache.New(base, cache, metrics.EmbeddingCacheLookups, logger,
			embcache.WithTTL(time.Duration(cacheCfg.TTLSec)*time.Second),
			embcache.WithModel(embCfg.Model),
			embcache.WithDimensions(embCfg.Dimensions),
		)
	}

	embedder = embeddinguc.WithPrefix(embedder, embCfg.Instruction)

	return embeddinguc.NewInstrumentedEmbedder(embedder, "openai", embCfg.Model)
}

// buildExplainer wires the streaming provider selected by chat.provider and,
// independently, the Claude completer used by /api/claude-chat.
func buildExplainer(cfg config.Config, logger *zap.Logger) *explainuc.Service {
	var claude *anthropicTransport.Client
	if cfg.Chat.Anthropic.APIKey != "" {
		claude = anthropicTransport.New(anthropicTransport.Config{
			APIKey:    cfg.Chat.Anthropic.APIKey,
			BaseURL:   cfg.Chat.Anthropic.BaseURL,
			Model:     cfg.Chat.Anthropic.Model,
			Version:   cfg.Chat.Anthropic.Version,
			MaxTokens: cfg.Chat.Anthropic.MaxTokens,
		}, newUpstreamClient("anthropic", cfg.Upstream, logger))
	}

	var streamer explainuc.ChatStreamer
	switch cfg.Chat.Provider {
	case config.ProviderOpenAI:
		streamer = openaiTransport.NewChatStreamer(openaiTransport.ChatConfig{
			APIKey:  cfg.Chat.OpenAI.APIKey,
			BaseURL: cfg.Chat.OpenAI.BaseURL,
			Model:   cfg.Chat.OpenAI.Model,
		}, newUpstreamClient("openai", cfg.Upstream, logger))
	case config.ProviderAnthropic:
		streamer = claude
	default:
		logger.Warn("chat.provider is empty; streaming routes will answer 501")
	}

	var completer explainuc.Completer
	if claude != nil {
		completer = claude
	}

	relayCfg := relay.Config{
		Timeout:        time.Duration(cfg.Chat.UpstreamTimeoutSec) * time.Second,
		ReadBufferSize: relay.DefaultReadBufferSize,
		MaxLineBytes:   cfg.Chat.MaxLineBytes,
		FlushTrailing:  *cfg.Chat.FlushTrailingLine,
	}
	return explainuc.New(streamer, completer, relayCfg)
}

func newUpstreamClient(name string, cfg config.UpstreamConfig, logger *zap.Logger) *upstream.Client {
	return upstream.New(upstream.Config{
		Name:            name,
		MaxRetries:      cfg.MaxRetries,
		InitialBackoff:  time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:      time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		BreakerFailures: uint32(cfg.BreakerFailures), //nolint:gosec // validated positive
		BreakerTimeout:  time.Duration(cfg.BreakerTimeoutSec) * time.Second,
	}, logger.Named(name))
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternal,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			ctx := logpkg.ForRequest(r.Context(), logger, requestID)
			reqLogger := logpkg.FromContext(ctx)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
