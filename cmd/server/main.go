package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"

	"github.com/KevinRabun/TruePulse-sub001/internal/config"
	"github.com/KevinRabun/TruePulse-sub001/internal/db"
	"github.com/KevinRabun/TruePulse-sub001/internal/handler"
	"github.com/KevinRabun/TruePulse-sub001/internal/middleware"
	"github.com/KevinRabun/TruePulse-sub001/internal/repository"
	"github.com/KevinRabun/TruePulse-sub001/internal/router"
	"github.com/KevinRabun/TruePulse-sub001/internal/service"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// Invalid policy must fail startup, never degrade per request.
		log.Fatalf("invalid configuration: %v", err)
	}

	middleware.InitLogger(cfg.LogLevel, "truepulse-integrity")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	cache := service.NewCacheService(cfg.RedisURL)
	defer cache.Close()

	handler.InitMetrics(pool)

	// Signal sources
	fingerprints := service.NewFingerprintService(cache, cfg.Policy.FingerprintWindow)
	behavior := service.NewBehaviorService(cfg.Policy.MinHumanReactionMs, false)

	var provider service.IntelProvider
	if cfg.IPIntelURL != "" {
		provider = service.NewHTTPProvider(cfg.IPIntelURL)
	} else {
		provider = service.NewHeuristicProvider()
	}
	intel := service.NewIPIntelService(cache, provider, cfg.Policy.IPLookupTimeout, cfg.Policy.IPIntelTTL)

	ledger := service.NewReputationService(repository.NewReputationRepo(pool), cfg.Policy)

	engine, err := service.NewRiskEngine(fingerprints, behavior, intel, ledger, cfg.Policy)
	if err != nil {
		log.Fatalf("failed to construct risk engine: %v", err)
	}

	var captcha service.CaptchaVerifier
	if endpoint := os.Getenv("CAPTCHA_VERIFY_URL"); endpoint != "" {
		captcha = service.NewHTTPCaptchaVerifier(endpoint, os.Getenv("CAPTCHA_SECRET"))
	}
	challenges := service.NewChallengeService(cache, captcha, cfg.ChallengeSecret, cfg.Policy.ChallengeTTL)

	outcomes := service.NewOutcomeWorker(ledger, 1024)
	go outcomes.Start(ctx)

	admission := service.NewAdmissionService(
		engine,
		repository.NewVoteRepo(pool),
		repository.NewPollRepo(pool),
		ledger,
		challenges,
		outcomes,
		cfg.TokenSecret,
		cfg.IdentitySalt,
	)

	app := fiber.New(fiber.Config{
		AppName:      "TruePulse Integrity API",
		ServerHeader: "TruePulse",
	})

	router.Setup(app, &router.Handlers{
		Vote:       handler.NewVoteHandler(admission),
		Challenge:  handler.NewChallengeHandler(challenges, outcomes, cfg.IdentitySalt),
		Reputation: handler.NewReputationHandler(ledger),
		Health:     handler.NewHealthHandler(pool, cache.Client()),
	}, cfg.CORSOrigins)

	go func() {
		<-ctx.Done()
		log.Println("shutting down")
		_ = app.Shutdown()
	}()

	log.Printf("TruePulse integrity engine starting on :%s (env=%s)", cfg.Port, cfg.Environment)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
