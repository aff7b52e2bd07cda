package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voice-quiz-service/internal/app"
	"voice-quiz-service/internal/auth"
	"voice-quiz-service/internal/metrics"
	"voice-quiz-service/internal/play"
	"voice-quiz-service/internal/ratelimit"
)

// Deps are the collaborators the HTTP surface is built from. Metrics is optional.
type Deps struct {
	Service        *app.QuizService
	Verifier       auth.Verifier
	Limiter        ratelimit.Limiter
	Attempts       play.Store
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	TrustedProxies []string
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	router := gin.New()
	if err := router.SetTrustedProxies(d.TrustedProxies); err != nil {
		d.Log.Warn("failed to set trusted proxies", zap.Error(err))
	}
	router.Use(gin.Recovery())
	router.Use(requestLogger(d.Log))
	if d.Metrics != nil {
		router.Use(d.Metrics.Middleware())
	}

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Client-Info", "Apikey"}
	corsCfg.ExposeHeaders = []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	router.Use(cors.New(corsCfg))

	var onReject func()
	if d.Metrics != nil {
		onReject = d.Metrics.RateLimited
	}

	quizHandler := NewQuizHandler(d.Service, d.Log)
	wsHandler := NewWSHandler(d.Service, d.Verifier, d.Attempts, d.Limiter, d.Log)
	if d.Metrics != nil {
		wsHandler.onReject = onReject
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/quizzes", quizHandler.ListQuizzes)
		api.GET("/quizzes/:quizId/questions", quizHandler.Questions)
		api.POST("/validate-answer",
			rateLimit(d.Limiter, onReject, d.Log),
			auth.RequireAuth(d.Verifier),
			quizHandler.ValidateAnswer)
		api.POST("/submit-results", auth.OptionalAuth(d.Verifier), quizHandler.SubmitResults)
		api.GET("/me/scores", auth.RequireAuth(d.Verifier), quizHandler.ScoreHistory)
	}

	router.GET("/ws/play", wsHandler.ServeWS)
	return router
}
