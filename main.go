package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FFXIVVenues/kino-ki/config"
	"github.com/FFXIVVenues/kino-ki/deathroll"
	"github.com/FFXIVVenues/kino-ki/handlers"
	"github.com/FFXIVVenues/kino-ki/middleware"
	"github.com/FFXIVVenues/kino-ki/models"
	"github.com/FFXIVVenues/kino-ki/services"
	"github.com/FFXIVVenues/kino-ki/utils"
	"github.com/FFXIVVenues/kino-ki/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.DeathrollPlayer{},
		&models.DeathrollMatch{},
		&models.JobChannel{},
		&models.JobTag{},
		&models.JobPostingStat{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	var archive services.Archiver
	if cfg.R2.Enabled() {
		a, err := utils.NewTranscriptArchive(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		archive = a
	} else {
		log.Println("⚠️  R2 not configured, match transcripts will not be archived")
	}

	dispatcher := workers.NewRelayDispatcher(cfg.ChatRelayURL, cfg.ServiceToken, cfg.RelayQueueSize)
	dispatcher.Start(ctx)

	hub := services.NewEventHub()
	playerService := services.NewPlayerService(db)
	deathrollService := services.NewDeathrollService(ctx, services.DeathrollOptions{
		Store:           playerService,
		Notifiers:       []deathroll.Notifier{hub, dispatcher},
		Archive:         archive,
		TurnTimeout:     cfg.Deathroll.TurnTimeout,
		CoinTossTimeout: cfg.Deathroll.CoinTossTimeout,
		DefaultCeiling:  cfg.Deathroll.DefaultCeiling,
		MaxCeiling:      cfg.Deathroll.MaxCeiling,
		MaxTossRetries:  cfg.Deathroll.MaxTossRetries,
	})
	jobService := services.NewJobPostingService(db, dispatcher)

	statuses, err := services.LoadStatuses(cfg.StatusFile)
	if err != nil {
		log.Printf("⚠️  Status rotation disabled: %v", err)
	}
	sched, err := services.StartScheduler(ctx, services.SchedulerConfig{
		StatusInterval: cfg.StatusInterval,
		SweepInterval:  cfg.SweepInterval,
	}, deathrollService, services.NewStatusRotator(statuses, dispatcher))
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	app := fiber.New(fiber.Config{
		AppName: "kino-ki",
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Origins(),
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-Guild-ID, Cache-Control",
		MaxAge:       86400, // 24 hours
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "ok",
			"deathrolls": deathrollService.Registry.Len(),
		})
	})

	// 🔐 Only the relay may call the API
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/healthz"))

	handlers.SetupDeathrollRoutes(app, deathrollService, hub)
	handlers.SetupPlayerRoutes(app, playerService)
	handlers.SetupJobPostingRoutes(app, jobService)

	go func() {
		if err := app.Listen(cfg.Addr()); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost%s", cfg.Addr())
	log.Printf("✅ CORS configured for origins: %s", cfg.Origins())

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := deathrollService.Shutdown(shutdownCtx); err != nil {
		log.Printf("Deathroll shutdown error: %v", err)
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
}
