package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/KevinRabun/TruePulse-sub001/internal/handler"
	"github.com/KevinRabun/TruePulse-sub001/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Vote       *handler.VoteHandler
	Challenge  *handler.ChallengeHandler
	Reputation *handler.ReputationHandler
	Health     *handler.HealthHandler
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, corsOrigins string) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(handler.MetricsMiddleware())
	app.Use(middleware.NewCORS(corsOrigins))

	// Probes and metrics (no rate limiting)
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", handler.MetricsHandler())

	api := app.Group("/api")

	voteLimiter := middleware.NewVoteRateLimiter()
	evaluateLimiter := middleware.NewEvaluateRateLimiter()
	challengeLimiter := middleware.NewChallengeRateLimiter()
	operatorLimiter := middleware.NewOperatorRateLimiter()

	api.Post("/votes", h.Vote.Submit, voteLimiter.Handler())
	api.Post("/votes/evaluate", h.Vote.Evaluate, evaluateLimiter.Handler())
	api.Post("/challenges/verify", h.Challenge.Verify, challengeLimiter.Handler())

	// Operator/moderation surface.
	api.Post("/votes/retract", h.Vote.Retract, operatorLimiter.Handler())
	api.Get("/polls/:pollId/votes/count", h.Vote.Count, operatorLimiter.Handler())
	api.Get("/reputation/:identityHash", h.Reputation.Get, operatorLimiter.Handler())
}
