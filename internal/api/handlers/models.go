package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studyhall/studyhall-backend/internal/models"
	"github.com/studyhall/studyhall-backend/internal/services"
)

// ListModels returns the selectable model configurations
func ListModels(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"models": svc.Chat.ListModels(),
		})
	}
}

// UpsertModel creates or replaces a model configuration (admin only)
func UpsertModel(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			ID           string  `json:"id"`
			DisplayName  string  `json:"displayName"`
			Provider     string  `json:"provider"`
			APIKey       string  `json:"apiKey"`
			BaseURL      string  `json:"baseUrl"`
			ModelID      string  `json:"modelId"`
			MaxTokens    int     `json:"maxTokens"`
			Temperature  float32 `json:"temperature"`
			SystemPrompt string  `json:"systemPrompt"`
			IsActive     *bool   `json:"isActive"`
			IsDefault    bool    `json:"isDefault"`
			Description  string  `json:"description"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		cfg := models.ModelConfig{
			ID:           req.ID,
			DisplayName:  req.DisplayName,
			Provider:     req.Provider,
			APIKey:       req.APIKey,
			BaseURL:      req.BaseURL,
			ModelID:      req.ModelID,
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
			SystemPrompt: req.SystemPrompt,
			IsActive:     req.IsActive == nil || *req.IsActive,
			IsDefault:    req.IsDefault,
			Description:  req.Description,
		}

		saved, err := svc.Models.Upsert(c.Context(), cfg)
		if err != nil {
			return respondError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(saved)
	}
}
