package api

import (
	"log/slog"

	"github.com/shaiso/Fanline/internal/campaign"
	"github.com/shaiso/Fanline/internal/media"
	"github.com/shaiso/Fanline/internal/registry"
	"github.com/shaiso/Fanline/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	instanceRepo *repo.InstanceRepo
	campaigns    *campaign.Service
	supervisor   *registry.Supervisor
	sessions     *registry.Registry
	hub          *registry.Hub
	media        *media.Store
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	InstanceRepo *repo.InstanceRepo
	Campaigns    *campaign.Service
	Supervisor   *registry.Supervisor
	Sessions     *registry.Registry
	Hub          *registry.Hub
	Media        *media.Store
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		instanceRepo: cfg.InstanceRepo,
		campaigns:    cfg.Campaigns,
		supervisor:   cfg.Supervisor,
		sessions:     cfg.Sessions,
		hub:          cfg.Hub,
		media:        cfg.Media,
		logger:       cfg.Logger,
	}
}
