package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/api"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/api/middleware"
	"github.com/maheshrc27/crosspost/internal/browser"
	job "github.com/maheshrc27/crosspost/internal/jobs"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/robfig/cron"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	strategies, err := cfg.Scheduler.Strategies()
	if err != nil {
		log.Fatalf("Invalid strategy order: %v", err)
	}
	policy, err := service.ParseFailurePolicy(cfg.Scheduler.FailurePolicy)
	if err != nil {
		log.Fatalf("Invalid failure policy: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	postRepo := repository.NewPostRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)
	historyRepo := repository.NewPostingHistoryRepository(db)

	codec := service.NewCredentialCodec(cfg.SecretKey)

	r2Client, err := service.NewR2Client(context.Background(), cfg.R2)
	if err != nil {
		log.Fatalf("Failed to configure media storage: %v", err)
	}
	mediaStore := service.NewMediaStore(r2Client, cfg.R2, os.TempDir())

	// platform api clients
	httpClient := &http.Client{Timeout: 2 * time.Minute}
	gatewayCfg := platform.DefaultGatewayConfig()
	gatewayCfg.RequestsPerSecond = cfg.Platforms.RequestsPerSecond
	gateway := platform.NewGateway(gatewayCfg,
		platform.NewXClient(cfg.Platforms.XBaseURL, httpClient),
		platform.NewLinkedInClient(cfg.Platforms.LinkedInBaseURL, cfg.Platforms.LinkedInVersion, httpClient),
		platform.NewInstagramClient(cfg.Platforms.InstagramBaseURL+"/"+cfg.Platforms.InstagramVersion, httpClient),
		platform.NewYouTubeClient(cfg.Platforms.GoogleClientID, cfg.Platforms.GoogleClientSecret, httpClient),
	)

	// browser automation
	launcher := browser.NewRodLauncher(browser.RodConfig{
		Bin:       cfg.Browser.Bin,
		NoSandbox: cfg.Browser.NoSandbox,
	})
	flows := browser.DefaultFlows()
	poster := browser.NewFlowPoster(flows, cfg.Browser.MarkerTimeout)
	cookieEngine := browser.NewCookieReplayEngine(launcher, poster, flows, collector.ActiveBrowsers(), nil)
	sessionManager := browser.NewManager(browser.SessionConfig{
		Root:              cfg.Browser.SessionsRoot,
		SessionTimeout:    cfg.Browser.SessionTimeout,
		OnboardingTimeout: cfg.Browser.OnboardingTimeout,
		SecretKey:         utils.DeriveKey(cfg.SecretKey),
	}, launcher, poster, flows, browser.NewRegistry(), collector.ActiveBrowsers(), nil)

	orchestrator := service.NewOrchestrator(service.OrchestratorConfig{
		Strategies:       strategies,
		Policy:           policy,
		PlatformDeadline: cfg.Scheduler.PlatformDeadline,
	}, credentialRepo, historyRepo, mediaStore, codec, gateway, cookieEngine, sessionManager, collector, nil)

	postService := service.NewPostService(postRepo, historyRepo, engagementRepo, mediaStore)
	accountService := service.NewAccountService(credentialRepo, codec, gateway, cookieEngine, sessionManager)
	analyticsService := service.NewAnalyticsService(postRepo, credentialRepo, engagementRepo, codec, gateway, collector, nil)

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	// scheduler loop
	publishJob := job.NewPublishJob(job.PublishJobConfig{
		MaxConcurrentPosts: cfg.Scheduler.MaxConcurrentPosts,
		AnalyticsDelay:     cfg.Analytics.InitialDelay,
	}, postRepo, orchestrator, queue.NewEnqueuer(client), collector, nil)
	scheduler := job.NewScheduler(publishJob, cfg.Scheduler.Interval, nil)

	// cron jobs
	credentialCheckJob := job.NewCredentialCheckJob(credentialRepo, codec, gateway, nil)
	sweepJob := job.NewAnalyticsSweepJob(analyticsService, cfg.Analytics.Lookback, nil)

	c := cron.New()
	if err := c.AddFunc(cfg.CredentialCheck, credentialCheckJob.CheckCredentials); err != nil {
		log.Fatalf("Invalid credential check schedule: %v", err)
	}
	if err := c.AddFunc(cfg.Analytics.SweepSpec, sweepJob.Run); err != nil {
		log.Fatalf("Invalid analytics sweep schedule: %v", err)
	}
	c.Start()

	//queue
	queueW := queue.NewQueue(analyticsService, nil)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})

	go func() {
		mux := asynq.NewServeMux()
		queueW.Register(mux)

		slog.Info("starting the asynq server")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(collector.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api.Routes(app, api.Handlers{
		Post:      handlers.NewPostHandler(postService),
		Platform:  handlers.NewPlatformHandler(accountService),
		Session:   handlers.NewSessionHandler(accountService),
		Analytics: handlers.NewAnalyticsHandler(analyticsService),
		Metrics:   collector.Handler(),
	}, authMiddleware.AuthMiddleware())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	scheduler.Start(ctx)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server is running", "port", cfg.Server.Port)

	gracefulShutdown(app, db, func() {
		scheduler.Stop()
		c.Stop()
		server.Shutdown()
		sessionManager.Close()
	})
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

// gracefulShutdown stops intake first so no new post is claimed while the
// database is closing.
func gracefulShutdown(app *fiber.App, db *sql.DB, stopWorkers func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	stopWorkers()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	slog.Info("server shutdown complete")
}
