package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voice-quiz-service/internal/app"
	"voice-quiz-service/internal/auth"
	"voice-quiz-service/internal/config"
	"voice-quiz-service/internal/domain"
	"voice-quiz-service/internal/infra/memory"
	pgstore "voice-quiz-service/internal/infra/postgres"
	rediscache "voice-quiz-service/internal/infra/redis"
	"voice-quiz-service/internal/logger"
	"voice-quiz-service/internal/metrics"
	"voice-quiz-service/internal/play"
	"voice-quiz-service/internal/ratelimit"
	transport "voice-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		loader  memory.QuizLoader
		catalog app.QuizCatalog
		scores  app.ScoreRepository
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		pgLoader := pgstore.NewQuizLoader(pool)
		loader, catalog, scores = pgLoader, pgLoader, pgstore.NewScoreStore(pool)
	} else {
		log.Warn("postgres not configured, serving built-in sample quizzes from memory")
		static := memory.NewStaticQuizLoader(sampleQuizzes()...)
		loader, catalog, scores = static, static, memory.NewScoreStore(static)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizRepo app.QuizRepository
		attempts play.Store
	)
	if redisClient != nil {
		quizRepo = rediscache.NewQuizRepository(redisClient, loader, quizTTL, log)
		attempts = rediscache.NewAttemptStore(redisClient, redisTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStore(redisTTL)
	}

	limiterCfg := ratelimit.Config{
		MaxRequests:   cfg.RateLimit.MaxRequests,
		Window:        config.TTLDuration(cfg.RateLimit.Window, time.Minute),
		SweepInterval: config.TTLDuration(cfg.RateLimit.SweepInterval, 5*time.Minute),
	}
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedisLimiter(redisClient, limiterCfg, log)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(limiterCfg)
		memLimiter.Start(ctx)
		defer memLimiter.Stop()
		limiter = memLimiter
	}

	verifier, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	if err != nil {
		return err
	}

	m := metrics.New()
	service := app.NewQuizService(quizRepo, catalog, scores,
		app.WithLogger(log),
		app.WithRecorder(m))

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := transport.NewRouter(transport.Deps{
		Service:        service,
		Verifier:       verifier,
		Limiter:        limiter,
		Attempts:       attempts,
		Metrics:        m,
		Log:            log,
		TrustedProxies: cfg.Server.TrustedProxies,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes is the catalog served when no database is configured.
func sampleQuizzes() []domain.Quiz {
	quizID := uuid.MustParse("6f1c1e52-5d55-4a55-9a53-6c1d3f0a2b01")
	question := func(id, text string, options []string, correct, points int, explanation string) domain.Question {
		return domain.Question{
			ID:            uuid.MustParse(id),
			QuizID:        quizID,
			Text:          text,
			Options:       options,
			CorrectAnswer: correct,
			Points:        points,
			Explanation:   explanation,
		}
	}
	return []domain.Quiz{
		{
			ID:               quizID,
			Title:            "General Knowledge",
			Description:      "A short warm-up quiz.",
			Difficulty:       "easy",
			TimeLimitSeconds: 300,
			IsActive:         true,
			CreatedAt:        time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			Questions: []domain.Question{
				question("0b6f5a1e-1c2d-4e3f-8a9b-0c1d2e3f4a01", "What is 2 + 2?",
					[]string{"3", "4", "5", "6"}, 1, 1, "Two plus two is four."),
				question("0b6f5a1e-1c2d-4e3f-8a9b-0c1d2e3f4a02", "Which planet is known as the Red Planet?",
					[]string{"Venus", "Jupiter", "Mars", "Saturn"}, 2, 1, "Iron oxide gives Mars its color."),
				question("0b6f5a1e-1c2d-4e3f-8a9b-0c1d2e3f4a03", "What is the capital of Japan?",
					[]string{"Kyoto", "Osaka", "Tokyo", "Nagoya"}, 2, 2, ""),
			},
		},
	}
}
