package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/auth"
	"github.com/worksim/api/internal/client"
	"github.com/worksim/api/internal/config"
	"github.com/worksim/api/internal/handler"
	"github.com/worksim/api/internal/logger"
	"github.com/worksim/api/internal/middleware"
	"github.com/worksim/api/internal/service"
	"github.com/worksim/api/internal/store"
	"github.com/worksim/api/internal/worker"
)

// @title          WorkSim Assessment API
// @version        1.0
// @description    Backend API for work-simulation hiring assessments.
// @BasePath       /
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.Env)
	ctx := context.Background()

	// Persistence: postgres when configured, in-memory otherwise
	var st store.Store
	if cfg.Database.DSN != "" {
		db, err := store.Connect(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if cfg.Database.AutoMigrate {
			if err := store.Migrate(db); err != nil {
				log.Fatalf("Failed to migrate database: %v", err)
			}
		}
		st = store.NewGormStore(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	// Redis backs the rate limiter, the evaluation lock and the task queue
	var (
		redisClient *redis.Client
		asynqClient *asynq.Client
		queue       service.EvaluationQueue
		locker      service.Locker
	)
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis not available")
		}
		asynqClient = asynq.NewClient(redisOpt)
		defer asynqClient.Close()

		queue = service.NewAsynqQueue(asynqClient, cfg.Assessment.EvaluationTimeout+time.Minute)
		locker = service.NewRedisLocker(redisClient)
	} else {
		log.Info("Redis disabled, evaluations run in-process")
	}

	validate := validator.New()

	// External clients
	geminiClient, err := client.NewGeminiClient(ctx, &cfg.Gemini)
	if err != nil {
		log.WithError(err).Warn("Gemini client not initialized")
		geminiClient, _ = client.NewGeminiClient(ctx, &config.GeminiConfig{})
	}
	groqClient := client.NewGroqClient(&cfg.Groq)
	githubClient := client.NewGitHubClient(&cfg.GitHub)
	emailClient := client.NewEmailClient(&cfg.Email)

	var storage client.StorageClient = &client.MockStorage{}
	r2Ready := false
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.WithError(err).Warn("R2 client not initialized, using mock storage")
		} else {
			storage = r2Client
			r2Ready = true
		}
	} else {
		log.Info("R2 storage not configured, using mock storage")
	}

	var tokenVerifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.WithError(err).Warn("JWKS verifier not initialized")
		} else {
			defer jwksVerifier.Close()
			tokenVerifier = jwksVerifier
		}
	}

	// Without Groq, memory summaries use the deterministic fallback
	var summarizer client.ContentGenerator
	if groqClient.IsConfigured() {
		summarizer = groqClient
	}

	// Services
	videoService := service.NewVideoService(st, geminiClient, storage, queue, locker, validate, service.VideoServiceConfig{
		EvaluationTimeout: cfg.Assessment.EvaluationTimeout,
		SignedURLExpiry:   cfg.Assessment.SignedURLExpiry,
	}, log)
	photoService := service.NewPhotoService(st, geminiClient, storage, log)
	finalizeService := service.NewFinalizeService(st, githubClient, videoService, photoService, service.FinalizeTimeouts{
		PRCleanup:    cfg.Assessment.PRCleanupTimeout,
		VideoKickoff: cfg.Assessment.VideoKickoffTimeout,
		ProfilePhoto: cfg.Assessment.ProfilePhotoTimeout,
	}, log)
	reportService := service.NewReportService(st, videoService, githubClient, emailClient, cfg.Assessment.AppBaseURL, log)
	memoryService := service.NewMemoryService(st, summarizer, cfg.Assessment.MemoryRecentMessages, cfg.Assessment.MemorySummaryMaxChars, log)

	// Auth: behind the gateway identity comes from ForwardAuth headers
	var apiAuth fiber.Handler
	if cfg.Gateway.Enabled {
		log.Info("Gateway mode enabled, using header-based auth")
		apiAuth = middleware.GatewayAuthMiddleware()
	} else {
		apiAuth = middleware.NewAuthMiddleware(tokenVerifier, cfg.JWT.Secret).Authenticate()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler(log),
		BodyLimit:    1 * 1024 * 1024,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if log.IsLevelEnabled(logrus.DebugLevel) {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
		Output: log.Writer(),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes := &handler.Routes{
		Auth:        handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret),
		Assessments: handler.NewAssessmentHandler(finalizeService, reportService, validate, log),
		Videos:      handler.NewVideoHandler(videoService, log),
		Memory:      handler.NewMemoryHandler(memoryService, log),
		APIAuth:     apiAuth,
		Limiter:     middleware.NewRateLimiter(redisClient, log),
		Limits:      cfg.RateLimit,
		Services: func() fiber.Map {
			return fiber.Map{
				"gemini":   geminiClient.IsConfigured(),
				"groq":     groqClient.IsConfigured(),
				"github":   githubClient.IsConfigured(),
				"email":    emailClient.IsConfigured(),
				"r2":       r2Ready,
				"redis":    redisClient != nil,
				"database": cfg.Database.DSN != "",
				"auth":     tokenVerifier != nil || cfg.JWT.Secret != "" || cfg.Gateway.Enabled,
			}
		},
	}
	routes.Register(app)

	var workerSrv *asynq.Server
	if cfg.Redis.Enabled {
		workerSrv = startWorkerServer(cfg, redisOpt, videoService, log)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down server...")
		if workerSrv != nil {
			workerSrv.Shutdown()
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Infof("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, videoService *service.VideoService, log *logrus.Logger) *asynq.Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			service.QueueVideo: 1,
		},
		Logger:         log,
		LogLevel:       logger.AsynqLevel(cfg.Server.LogLevel),
		RetryDelayFunc: worker.RetryDelay(cfg.Assessment.EvaluationTimeout),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.WithError(err).WithField("task", task.Type()).Warn("task failed")
		}),
	})

	videoWorker := worker.NewVideoWorker(videoService, log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeVideoEvaluate, videoWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.WithError(err).Error("Asynq worker failed to start")
		return nil
	}
	return srv
}
