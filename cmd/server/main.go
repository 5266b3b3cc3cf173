package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"
	config "github.com/xeinst/autopost/configs"
	"github.com/xeinst/autopost/internal/api/handlers"
	"github.com/xeinst/autopost/internal/api/middleware"
	job "github.com/xeinst/autopost/internal/jobs"
	"github.com/xeinst/autopost/internal/platform"
	"github.com/xeinst/autopost/internal/queue"
	"github.com/xeinst/autopost/internal/repository"
	"github.com/xeinst/autopost/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	botConfig, err := config.LoadBotConfig(cfg.BotFile)
	if err != nil {
		log.Fatalf("Failed to load bot config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  1 * time.Minute,
		WriteTimeout: 1 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-Api-Key",
		MaxAge:       3600,
	}))

	clk := clock.New()

	uow := repository.NewUnitOfWork(db)
	draftRepo := repository.NewDraftRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	rateLimitRepo := repository.NewRateLimitRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	gate := service.NewModerationGate(botConfig.Moderation)
	rateLimitService := service.NewRateLimitService(rateLimitRepo, activityRepo, botConfig, clk)
	draftService := service.NewDraftService(uow, draftRepo, activityRepo, rateLimitService, gate, botConfig, clk)
	settingsService := service.NewSettingsService(settingsRepo)
	generatorService := service.NewGeneratorService(cfg.Ollama)

	redditClient := platform.NewRedditClient(cfg.Reddit)
	publishers := &platform.Publishers{
		Reddit:  redditClient,
		Bluesky: platform.NewBlueskyClient(cfg.Bluesky),
	}

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	draft := handlers.NewDraftHandler(draftService, client)
	api.Post("/drafts", draft.CreateDraft)
	api.Get("/drafts", draft.ListDrafts)
	api.Get("/drafts/inconsistent", draft.ListInconsistent)
	api.Get("/drafts/:id", draft.GetDraft)
	api.Post("/drafts/:id/approve", draft.ApproveDraft)
	api.Post("/drafts/:id/reject", draft.RejectDraft)
	api.Post("/drafts/:id/skip", draft.SkipDraft)
	api.Post("/drafts/:id/edit", draft.EditDraft)
	api.Post("/drafts/:id/retry", draft.RetryDraft)

	activity := handlers.NewActivityHandler(activityRepo)
	api.Get("/activity", activity.ListActivity)

	settings := handlers.NewSettingsHandler(settingsService)
	api.Get("/settings/info", settings.GetSettings)
	api.Post("/settings/update", settings.UpdateSettings)

	// flag drafts whose refs contradict their state before taking any traffic
	reconcile(draftService)

	// cron jobs
	monitorJob := job.NewMonitorJob(botConfig, redditClient, generatorService, draftService, draftRepo)
	publishJob := job.NewPublishJob(draftService, client)
	reportJob := job.NewReportJob(activityRepo, clk)

	// queue
	queueW := queue.NewQueue(draftService, rateLimitService, settingsService, publishers, botConfig, clk, client)

	c := cron.New()
	c.AddFunc(fmt.Sprintf("@every %dm", botConfig.Scheduler.MonitorIntervalMinutes), monitorJob.Run)
	c.AddFunc(fmt.Sprintf("@every %dm", botConfig.Scheduler.PublishIntervalMinutes), publishJob.Run)
	c.AddFunc(fmt.Sprintf("0 0 %d * * *", botConfig.Scheduler.DailyReportHour), reportJob.Run)
	c.Start()

	// single worker: publish attempts are serialized behind the global pacing
	// interval anyway
	asynqServer := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 1,
	})

	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishDraft, queueW.HandlePublishDraftTask)

		log.Println("Starting the Asynq server...")
		if err := asynqServer.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, db, c, asynqServer)
}

func reconcile(ds service.DraftService) {
	drafts, err := ds.ListInconsistent(context.Background())
	if err != nil {
		log.Printf("Consistency check failed: %v", err)
		return
	}
	for _, d := range drafts {
		log.Printf("Inconsistent draft %s: status=%s published_ref=%q failure_reason=%q",
			d.ID, d.Status, d.PublishedRef, d.FailureReason)
	}
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, c *cron.Cron, asynqServer *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()
	asynqServer.Shutdown()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
