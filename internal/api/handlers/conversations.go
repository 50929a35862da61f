package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/studyhall/studyhall-backend/internal/api/middleware"
	"github.com/studyhall/studyhall-backend/internal/providers"
	"github.com/studyhall/studyhall-backend/internal/repository"
	"github.com/studyhall/studyhall-backend/internal/services"
)

// respondError maps service errors to HTTP statuses. Provider failures
// surface their classified user-facing message, never the raw API error.
func respondError(c *fiber.Ctx, err error) error {
	var provErr *providers.ProviderError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Conversation not found",
		})
	case errors.Is(err, repository.ErrAccessDenied):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied",
		})
	case errors.Is(err, services.ErrModelNotFound), errors.Is(err, services.ErrModelInactive),
		errors.Is(err, services.ErrNoActiveModels), errors.Is(err, services.ErrInvalidModel):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.As(err, &provErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": provErr.UserMessage(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

// CreateConversation creates a new conversation
func CreateConversation(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext, ok := middleware.GetUserContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			ModelID string `json:"modelId"`
			Title   string `json:"title"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		conv, err := svc.Chat.CreateConversation(c.Context(), userContext.UserID, req.ModelID, req.Title)
		if err != nil {
			return respondError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(conv)
	}
}

// ListConversations returns the user's conversation summaries
func ListConversations(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext, ok := middleware.GetUserContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		page, _ := strconv.Atoi(c.Query("page", "1"))
		pageSize, _ := strconv.Atoi(c.Query("pageSize", "20"))

		summaries, err := svc.Chat.ListConversations(c.Context(), userContext.UserID, page, pageSize)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"conversations": summaries,
			"page":          page,
			"pageSize":      pageSize,
		})
	}
}

// GetConversation returns a specific conversation
func GetConversation(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext, ok := middleware.GetUserContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		conv, err := svc.Chat.GetConversation(c.Context(), c.Params("id"), userContext.UserID)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(conv)
	}
}

// SendMessage runs one chat turn in a conversation
func SendMessage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext, ok := middleware.GetUserContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Message string `json:"message"`
			ModelID string `json:"modelId"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.Message == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Message is required",
			})
		}

		result, err := svc.Chat.SendMessage(c.Context(), c.Params("id"), userContext.UserID, req.Message, req.ModelID)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(result)
	}
}

// UpdateConversationTitle renames a conversation
func UpdateConversationTitle(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext, ok := middleware.GetUserContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Title string `json:"title"`
		}
		if err := c.BodyParser(&req); err != nil || req.Title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Title is required",
			})
		}

		conv, err := svc.Chat.UpdateTitle(c.Context(), c.Params("id"), userContext.UserID, req.Title)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(conv)
	}
}

// DeleteConversation soft-deletes a conversation
func DeleteConversation(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext, ok := middleware.GetUserContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		if err := svc.Chat.DeleteConversation(c.Context(), c.Params("id"), userContext.UserID); err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"message": "Conversation deleted",
		})
	}
}

// GetConversationPublicURL returns the shareable link for a conversation
func GetConversationPublicURL(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext, ok := middleware.GetUserContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		url, err := svc.Chat.GetPublicURL(c.Context(), c.Params("id"), userContext.UserID)
		if err != nil {
			return respondError(c, err)
		}
		if url == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No public link available for this conversation",
			})
		}

		return c.JSON(fiber.Map{
			"publicUrl": url,
		})
	}
}

// GetConversationBackups lists the stored copies of a conversation
func GetConversationBackups(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext, ok := middleware.GetUserContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		backups, err := svc.Chat.ListBackups(c.Context(), c.Params("id"), userContext.UserID)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"backups": backups,
		})
	}
}
