package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"parentseed/internal/cache"
	"parentseed/internal/config"
	"parentseed/internal/counselor"
	"parentseed/internal/crypto"
	"parentseed/internal/db"
	"parentseed/internal/handlers"
	mw "parentseed/internal/middleware"
	"parentseed/internal/services"
	"parentseed/internal/store"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newProvider(ctx context.Context, cfg config.LLMConfig) (counselor.Provider, error) {
	if cfg.Provider == "gemini" {
		return counselor.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	return counselor.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	dbConn, err := sqlx.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open db", zap.Error(err))
	}
	defer dbConn.Close()
	dbConn.SetMaxOpenConns(10)
	dbConn.SetConnMaxLifetime(2 * time.Hour)
	if err := dbConn.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping db", zap.Error(err))
	}
	if err := db.RunMigrations(ctx, dbConn); err != nil {
		logger.Fatal("failed migrations", zap.Error(err))
	}

	var key, blindKey []byte
	if cfg.EncryptionKey != "" {
		if key, err = crypto.KeyFromBase64(cfg.EncryptionKey); err != nil {
			logger.Fatal("invalid ENCRYPTION_KEY", zap.Error(err))
		}
		if blindKey, err = crypto.KeyFromBase64(cfg.BlindIndexKey); err != nil {
			logger.Fatal("invalid BLIND_INDEX_KEY", zap.Error(err))
		}
	}
	encSvc, err := services.NewEncryptionService(key, blindKey)
	if err != nil {
		logger.Fatal("failed to init encryption", zap.Error(err))
	}
	if !encSvc.Enabled() {
		logger.Warn("ENCRYPTION_KEY not set; emails and journal content are stored in plaintext")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if rdb, err = cache.Connect(ctx, cfg.RedisURL); err != nil {
			logger.Warn("redis unavailable; dashboard cache disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			logger.Info("connected to redis")
		}
	}
	dashboards := cache.NewDashboards(rdb)

	provider, err := newProvider(ctx, cfg.LLM)
	if err != nil {
		logger.Fatal("failed to init LLM provider", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
	}
	coach := counselor.New(provider, logger.Named("counselor"))

	st := store.New(dbConn)
	authHandler := handlers.NewAuthHandler(st, encSvc, []byte(cfg.JWTSecret), logger)
	journalHandler := handlers.NewJournalHandler(st, coach, encSvc, dashboards, logger)
	dashboardHandler := handlers.NewDashboardHandler(st, encSvc, dashboards, logger)
	counselorHandler := handlers.NewCounselorHandler(coach, logger)
	userHandler := handlers.NewUserHandler(st, dashboards, logger)
	authMW := mw.NewAuthMiddleware([]byte(cfg.JWTSecret))
	limiter := mw.NewCounselorRateLimiter()
	go limiter.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.ZapRequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/signup", authHandler.Signup)
		api.Post("/auth/login", authHandler.Login)
		api.Post("/auth/check-email", authHandler.CheckEmail)
		api.Get("/emotions", journalHandler.Emotions)

		api.Group(func(pr chi.Router) {
			pr.Use(authMW.RequireAuth)
			pr.Post("/journal", journalHandler.Create)
			pr.Get("/journal", journalHandler.List)
			pr.Delete("/journal/{id}", journalHandler.Delete)
			pr.Get("/stats", dashboardHandler.Get)
			pr.Delete("/account", userHandler.DeleteAccount)

			pr.Group(func(llm chi.Router) {
				llm.Use(limiter.Limit)
				llm.Post("/advice", counselorHandler.Advice)
				llm.Post("/chat", counselorHandler.Chat)
			})
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("llm_provider", provider.Name()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
