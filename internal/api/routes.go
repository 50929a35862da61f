package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studyhall/studyhall-backend/internal/api/handlers"
	"github.com/studyhall/studyhall-backend/internal/api/middleware"
	"github.com/studyhall/studyhall-backend/internal/auth"
	"github.com/studyhall/studyhall-backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services, jwtService *auth.JWTService) {
	api := app.Group("/api/v1")

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "studyhall-backend",
		})
	})

	// Everything under /llm requires an authenticated user.
	llm := api.Group("/llm", middleware.AuthRequired(jwtService), middleware.DefaultRateLimit())

	llm.Get("/models", handlers.ListModels(svc))

	llm.Post("/conversations", handlers.CreateConversation(svc))
	llm.Get("/conversations", handlers.ListConversations(svc))
	llm.Get("/conversations/:id", handlers.GetConversation(svc))
	llm.Post("/conversations/:id/messages", middleware.ChatRateLimit(), handlers.SendMessage(svc))
	llm.Put("/conversations/:id/title", handlers.UpdateConversationTitle(svc))
	llm.Delete("/conversations/:id", handlers.DeleteConversation(svc))
	llm.Get("/conversations/:id/public-url", handlers.GetConversationPublicURL(svc))
	llm.Get("/conversations/:id/backups", handlers.GetConversationBackups(svc))

	// Model management is restricted to admin tokens.
	admin := llm.Group("/admin", middleware.AdminRequired())
	admin.Post("/models", handlers.UpsertModel(svc))
}
