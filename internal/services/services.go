package services

import (
	"github.com/sirupsen/logrus"

	"github.com/studyhall/studyhall-backend/internal/config"
	"github.com/studyhall/studyhall-backend/internal/repository"
)

// Services holds all service instances
type Services struct {
	Chat   *ChatService
	Models *ModelRegistry
}

// NewServices creates all service instances
func NewServices(
	cfg *config.Config,
	convRepo repository.ConversationRepository,
	modelStore repository.ModelStore,
	log *logrus.Logger,
) *Services {
	registry := NewModelRegistry(cfg, modelStore, log)
	return &Services{
		Chat:   NewChatService(convRepo, registry, log),
		Models: registry,
	}
}
