package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/api/handlers"
	"github.com/maheshrc27/clipflow/internal/api/middleware"
	job "github.com/maheshrc27/clipflow/internal/jobs"
	"github.com/maheshrc27/clipflow/internal/queue"
	"github.com/maheshrc27/clipflow/internal/repository"
	"github.com/maheshrc27/clipflow/internal/service"
	"github.com/maheshrc27/clipflow/pkg/utils"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if cfg.APIKey == "" {
		key, err := utils.GenerateRandomKey(24)
		if err != nil {
			log.Fatalf("Failed to generate API key: %v", err)
		}
		cfg.APIKey = key
		log.Printf("API_KEY is not set, using a generated key for this run: %s", key)
	}

	var db *sql.DB
	var publishJobRepo repository.PublishJobRepository
	if cfg.PostgresURI != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer closeDB(db)

		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}
		if err := repository.Migrate(context.Background(), db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		publishJobRepo = repository.NewPublishJobRepository(db)
	} else {
		log.Println("POSTGRES_URI is not set, publish jobs will not be recorded")
	}

	var r2Service *service.R2Service
	if cfg.R2Enabled() {
		r2Service = service.NewR2Service(*cfg)
	}

	credentialStore := repository.NewFileCredentialStore(cfg.TokenFile, cfg.SecretKey)
	tiktokClient := service.NewTiktokClient(*cfg, nil)

	// The server has no terminal; authorization goes through /auth/tiktok.
	authService := service.NewAuthService(*cfg, tiktokClient, nil)
	uploadService := service.NewUploadService(*cfg, tiktokClient, nil)
	statusService := service.NewStatusService(*cfg, tiktokClient)
	videoService := service.NewVideoService(r2Service)
	publishService := service.NewPublishService(*cfg, credentialStore, authService, uploadService, statusService, videoService, publishJobRepo)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: cfg.PublishTimeout + time.Minute,
		BodyLimit:    1 * 1024 * 1024, // 1 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
		MaxAge:       3600,
	}))

	app.Get("/health", handlers.Health)

	auth := handlers.NewAuthHandler(*cfg, authService, credentialStore)
	app.Get("/auth/tiktok", auth.Login)
	app.Get("/auth/tiktok/callback", auth.Callback)

	var asynqClient *asynq.Client
	var enqueuer queue.Enqueuer
	var asynqServer *asynq.Server
	if cfg.RedisURI != "" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		asynqClient = asynq.NewClient(redisConn)
		defer asynqClient.Close()
		enqueuer = asynqClient

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 2,
		})
	} else {
		log.Println("REDIS_URI is not set, publish requests run synchronously")
	}

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	publish := handlers.NewPublishHandler(*cfg, publishService, statusService, publishJobRepo, enqueuer)
	api.Post("/publish", publish.CreatePublish)
	api.Get("/publish/:publish_id", publish.GetPublish)
	api.Post("/publish/:publish_id/resume", publish.ResumePublish)

	// cron jobs
	c := cron.New()
	if publishJobRepo != nil {
		statusRefreshJob := job.NewStatusRefreshJob(publishJobRepo, publishService, cfg.Poll.RefreshBatchSize)
		if err := c.AddFunc(cfg.Poll.RefreshSchedule, statusRefreshJob.RefreshStatuses); err != nil {
			log.Fatalf("Invalid STATUS_REFRESH_SCHEDULE: %v", err)
		}
		if err := c.AddFunc(cfg.Poll.CredentialRefreshSpec, statusRefreshJob.RefreshCredential); err != nil {
			log.Fatalf("Invalid CREDENTIAL_REFRESH_SCHEDULE: %v", err)
		}
	}
	c.Start()
	defer c.Stop()

	//queue
	if asynqServer != nil {
		queueW := queue.NewQueue(publishService)

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishVideo, queueW.HandlePublishVideoTask)

		log.Println("Starting the Asynq server...")
		if err := asynqServer.Start(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, asynqServer)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, asynqServer *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if asynqServer != nil {
		asynqServer.Shutdown()
	}

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}

	log.Println("Server shutdown complete.")
}
