package main

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/studyhall/studyhall-backend/internal/api"
	"github.com/studyhall/studyhall-backend/internal/auth"
	"github.com/studyhall/studyhall-backend/internal/config"
	"github.com/studyhall/studyhall-backend/internal/database"
	"github.com/studyhall/studyhall-backend/internal/megastore"
	"github.com/studyhall/studyhall-backend/internal/repository"
	megarepo "github.com/studyhall/studyhall-backend/internal/repository/mega"
	"github.com/studyhall/studyhall-backend/internal/repository/postgres"
	"github.com/studyhall/studyhall-backend/internal/services"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	// The model store is optional: without a database the registry runs on
	// environment-seeded models alone.
	var modelStore repository.ModelStore
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Warn("Database unavailable, continuing with environment models only")
	} else {
		defer db.Close()
		if err := database.RunMigrations(cfg.Database); err != nil {
			log.WithError(err).Fatal("Failed to run migrations")
		}
		modelStore = postgres.NewModelStore(db.DB)
	}

	// Remote conversation store
	store := megastore.NewClient(cfg.MegaStore, log)
	if store.Enabled() {
		log.Info("Remote object store configured")
	} else {
		log.Warn("Remote object store not configured, conversations will be cache-only")
	}
	convRepo := megarepo.NewConversationRepository(store, log)

	// Services
	svc := services.NewServices(cfg, convRepo, modelStore, log)

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "change-me-in-production"
		log.Warn("Using default JWT secret. Set STUDYHALL_JWT_SECRET in production!")
	}
	jwtService := auth.NewJWTService(cfg.JWTSecret, "studyhall-backend")

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "StudyHall Backend",
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Setup routes
	api.SetupRoutes(app, svc, jwtService)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("Starting server")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

// customErrorHandler formats unhandled fiber errors as JSON
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(log *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		entry := log.WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"status": c.Response().StatusCode(),
		})
		if err != nil {
			entry.WithError(err).Warn("Request failed")
		} else {
			entry.Info("Request")
		}
		return err
	}
}
